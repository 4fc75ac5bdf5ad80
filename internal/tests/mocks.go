package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository. Claim
// runs under the mutex so it is as atomic as the SQL it stands in for.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver
	order   []string

	// Counters for verification
	CreateCallCount int32
	ClaimCallCount  int32

	// Error injection
	CreateError error
	ClaimError  error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
	m.order = append(m.order, driver.ID)
}

func (m *MockDriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
	m.order = append(m.order, driver.ID)
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *driver
	return &copy, nil
}

func (m *MockDriverRepository) GetByEmail(ctx context.Context, email string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if m.drivers[id].Email == email {
			copy := *m.drivers[id]
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockDriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Driver, 0, len(m.order))
	for _, id := range m.order {
		copy := *m.drivers[id]
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockDriverRepository) ListAvailable(ctx context.Context) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Driver
	for _, id := range m.order {
		d := m.drivers[id]
		if d.Status == domain.DriverStatusOnline && d.CurrentRideID == "" {
			copy := *d
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockDriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Status = status
	return nil
}

func (m *MockDriverRepository) Claim(ctx context.Context, driverID, rideID string) error {
	atomic.AddInt32(&m.ClaimCallCount, 1)
	if m.ClaimError != nil {
		return m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	if driver.Status != domain.DriverStatusOnline || driver.CurrentRideID != "" {
		return repository.ErrDriverUnavailable
	}
	driver.Status = domain.DriverStatusOnTrip
	driver.CurrentRideID = rideID
	return nil
}

func (m *MockDriverRepository) Release(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	driver.CurrentRideID = ""
	if driver.Status == domain.DriverStatusOnTrip {
		driver.Status = domain.DriverStatusOnline
	}
	return nil
}

func (m *MockDriverRepository) Heartbeat(ctx context.Context, driverID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	driver.LastSeen = at
	if driver.Status == domain.DriverStatusOffline {
		driver.Status = domain.DriverStatusOnline
	}
	return nil
}

func (m *MockDriverRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	demoted := 0
	for _, d := range m.drivers {
		if d.Status == domain.DriverStatusOnline && d.LastSeen.Before(cutoff) {
			d.Status = domain.DriverStatusOffline
			demoted++
		}
	}
	return demoted, nil
}

// GetDriver returns the live driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drivers[id]
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.RideRequest
	order []string

	// Counters for verification
	CreateCallCount     int32
	TransitionCallCount int32

	// Error injection
	CreateError     error
	TransitionError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.RideRequest),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.RideRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
	m.order = append(m.order, ride.ID)
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.RideRequest) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Store a copy; the stored state only changes through Transition, like
	// a row in the real store.
	copy := *ride
	m.rides[ride.ID] = &copy
	m.order = append(m.order, ride.ID)
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) GetByPort(ctx context.Context, port int) (*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		r := m.rides[id]
		if r.Port == port && r.Status == domain.RideStatusAssigned {
			copy := *r
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockRideRepository) GetAll(ctx context.Context) ([]*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.RideRequest, 0, len(m.order))
	for _, id := range m.order {
		copy := *m.rides[id]
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockRideRepository) OldestPending(ctx context.Context) (*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if m.rides[id].Status == domain.RideStatusPending {
			copy := *m.rides[id]
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockRideRepository) ListPending(ctx context.Context) ([]*domain.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.RideRequest
	for _, id := range m.order {
		if m.rides[id].Status == domain.RideStatusPending {
			copy := *m.rides[id]
			result = append(result, &copy)
		}
	}
	return result, nil
}

// Transition mirrors the guarded SQL update: the write only lands when the
// stored status still matches from.
func (m *MockRideRepository) Transition(ctx context.Context, ride *domain.RideRequest, from domain.RideStatus) error {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrRideConflict
	}
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) StatsForRider(ctx context.Context, riderID string) (repository.RiderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats repository.RiderStats
	for _, r := range m.rides {
		if r.RiderID == riderID && r.Status == domain.RideStatusCompleted {
			stats.RidesCompleted++
			stats.TotalFareSpent += r.FinalFare
		}
	}
	return stats, nil
}

// GetRide returns the live ride for test assertions.
func (m *MockRideRepository) GetRide(id string) *domain.RideRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id]
}

// ──────────────────────────────────────────────
// MOCK COUPON REPOSITORY
// ──────────────────────────────────────────────

// MockCouponRepository is a mock implementation of CouponRepository.
// CommitUsage holds the mutex across the whole read-modify-write, matching
// the transactional guarantee of the real store.
type MockCouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*domain.Coupon
	// commits mirrors the commit ledger: (couponID, rideID) -> riderID.
	commits map[[2]string]string

	CommitCallCount int32
}

// NewMockCouponRepository creates a new mock coupon repository.
func NewMockCouponRepository() *MockCouponRepository {
	return &MockCouponRepository{
		coupons: make(map[string]*domain.Coupon),
		commits: make(map[[2]string]string),
	}
}

// AddCoupon adds a coupon to the mock repository.
func (m *MockCouponRepository) AddCoupon(coupon *domain.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[coupon.ID] = coupon
}

func (m *MockCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[coupon.ID] = coupon
	return nil
}

func (m *MockCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.coupons {
		if c.Code == code && c.IsActive {
			copy := *c
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockCouponRepository) ListActive(ctx context.Context) ([]*domain.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Coupon
	for _, c := range m.coupons {
		if c.IsActive {
			copy := *c
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *MockCouponRepository) UsageForRider(ctx context.Context, couponID, riderID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageForRiderLocked(couponID, riderID), nil
}

func (m *MockCouponRepository) usageForRiderLocked(couponID, riderID string) int {
	used := 0
	for key, rider := range m.commits {
		if key[0] == couponID && rider == riderID {
			used++
		}
	}
	return used
}

func (m *MockCouponRepository) CommitUsage(ctx context.Context, couponID, riderID, rideID string) error {
	atomic.AddInt32(&m.CommitCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	coupon, ok := m.coupons[couponID]
	if !ok {
		return repository.ErrNotFound
	}

	key := [2]string{couponID, rideID}
	if _, committed := m.commits[key]; committed {
		// Retried booking; already accounted.
		return nil
	}

	if coupon.TotalUsageLimit > 0 && coupon.UsageCount >= coupon.TotalUsageLimit {
		return repository.ErrCouponLimitReached
	}
	if m.usageForRiderLocked(couponID, riderID) >= coupon.PerUserLimit {
		return repository.ErrCouponLimitReached
	}

	coupon.UsageCount++
	m.commits[key] = riderID
	return nil
}

// GetCoupon returns the live coupon for test assertions.
func (m *MockCouponRepository) GetCoupon(id string) *domain.Coupon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coupons[id]
}

// ──────────────────────────────────────────────
// MOCK MERCHANT REPOSITORY
// ──────────────────────────────────────────────

// MockMerchantRepository is a mock implementation of MerchantRepository.
type MockMerchantRepository struct {
	mu          sync.RWMutex
	merchants   map[string]*domain.Merchant
	coupons     map[string]*domain.MerchantCoupon
	redemptions []*domain.Redemption

	RedeemCallCount int32
}

// NewMockMerchantRepository creates a new mock merchant repository.
func NewMockMerchantRepository() *MockMerchantRepository {
	return &MockMerchantRepository{
		merchants: make(map[string]*domain.Merchant),
		coupons:   make(map[string]*domain.MerchantCoupon),
	}
}

// AddMerchant adds a merchant to the mock repository.
func (m *MockMerchantRepository) AddMerchant(merchant *domain.Merchant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[merchant.ID] = merchant
}

// AddCoupon adds a merchant coupon to the mock repository.
func (m *MockMerchantRepository) AddCoupon(coupon *domain.MerchantCoupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[coupon.ID] = coupon
}

func (m *MockMerchantRepository) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[merchant.ID] = merchant
	return nil
}

func (m *MockMerchantRepository) GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	merchant, ok := m.merchants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *merchant
	return &copy, nil
}

func (m *MockMerchantRepository) GetMerchantByEmail(ctx context.Context, email string) (*domain.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, merchant := range m.merchants {
		if merchant.Email == email {
			copy := *merchant
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockMerchantRepository) CreateCoupon(ctx context.Context, coupon *domain.MerchantCoupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[coupon.ID] = coupon
	return nil
}

func (m *MockMerchantRepository) GetCouponByID(ctx context.Context, id string) (*domain.MerchantCoupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coupon, ok := m.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *coupon
	return &copy, nil
}

func (m *MockMerchantRepository) ListCouponsByMerchant(ctx context.Context, merchantID string) ([]*domain.MerchantCoupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.MerchantCoupon
	for _, c := range m.coupons {
		if c.MerchantID == merchantID {
			copy := *c
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *MockMerchantRepository) ListActiveOffers(ctx context.Context) ([]repository.MerchantOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []repository.MerchantOffer
	for _, c := range m.coupons {
		if !c.IsActive {
			continue
		}
		merchant, ok := m.merchants[c.MerchantID]
		if !ok {
			continue
		}
		couponCopy := *c
		merchantCopy := *merchant
		result = append(result, repository.MerchantOffer{
			Coupon:   &couponCopy,
			Merchant: &merchantCopy,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Coupon.Code < result[j].Coupon.Code })
	return result, nil
}

func (m *MockMerchantRepository) SetCouponActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coupon, ok := m.coupons[id]
	if !ok {
		return repository.ErrNotFound
	}
	coupon.IsActive = active
	return nil
}

func (m *MockMerchantRepository) Redeem(ctx context.Context, redemption *domain.Redemption) error {
	atomic.AddInt32(&m.RedeemCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	coupon, ok := m.coupons[redemption.CouponID]
	if !ok {
		return repository.ErrNotFound
	}

	for _, existing := range m.redemptions {
		if existing.CouponID == redemption.CouponID &&
			existing.RiderID == redemption.RiderID &&
			existing.RideID == redemption.RideID {
			return repository.ErrAlreadyRedeemed
		}
	}

	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return repository.ErrCouponLimitReached
	}

	coupon.UsageCount++
	copy := *redemption
	m.redemptions = append(m.redemptions, &copy)
	return nil
}

func (m *MockMerchantRepository) ListRedemptionsByMerchant(ctx context.Context, merchantID string) ([]*domain.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Redemption
	for i := len(m.redemptions) - 1; i >= 0; i-- {
		r := m.redemptions[i]
		coupon, ok := m.coupons[r.CouponID]
		if !ok || coupon.MerchantID != merchantID {
			continue
		}
		copy := *r
		result = append(result, &copy)
	}
	return result, nil
}

// RedemptionCount returns the number of stored redemptions.
func (m *MockMerchantRepository) RedemptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.redemptions)
}

// GetMerchantCoupon returns the live coupon for test assertions.
func (m *MockMerchantRepository) GetMerchantCoupon(id string) *domain.MerchantCoupon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coupons[id]
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		copy := *u
		result = append(result, &copy)
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION / LOCK STORES
// ──────────────────────────────────────────────

// MockLocationStore is an in-memory stand-in for the Redis GEO store.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations []redis.DriverLocation
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{}
}

// SetLocations replaces the stored locations.
func (m *MockLocationStore) SetLocations(locations []redis.DriverLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = locations
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.DriverID == driverID {
			m.locations[i].Lat = lat
			m.locations[i].Lng = lng
			return nil
		}
	}
	m.locations = append(m.locations, redis.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng})
	return nil
}

func (m *MockLocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]redis.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]redis.DriverLocation, len(m.locations))
	copy(result, m.locations)
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.DriverID == driverID {
			m.locations = append(m.locations[:i], m.locations[i+1:]...)
			return nil
		}
	}
	return nil
}

// MockLockStore is an in-memory stand-in for the Redis SetNX lock store.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[driverID] {
		return false, nil
	}
	m.locks[driverID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseDriverLock(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, driverID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK ADMIN REPOSITORY
// ──────────────────────────────────────────────

// MockAdminRepository purges simulated entities from the sibling mocks.
type MockAdminRepository struct {
	Users   *MockUserRepository
	Drivers *MockDriverRepository
	Rides   *MockRideRepository
}

func (m *MockAdminRepository) PurgeSimulationData(ctx context.Context) (repository.CleanupStats, []string, error) {
	var stats repository.CleanupStats
	var rideIDs []string

	m.Rides.mu.Lock()
	remaining := make(map[string]*domain.RideRequest)
	var order []string
	for _, id := range m.Rides.order {
		r := m.Rides.rides[id]
		if r.Simulated {
			stats.RidesDeleted++
			rideIDs = append(rideIDs, r.ID)
			continue
		}
		remaining[id] = r
		order = append(order, id)
	}
	m.Rides.rides = remaining
	m.Rides.order = order
	m.Rides.mu.Unlock()

	return stats, rideIDs, nil
}
