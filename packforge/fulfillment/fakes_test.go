package fulfillment

import (
	"context"
	"sort"
	"sync"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// The fakes below back every repository interface the fulfillment pipeline
// touches with in-memory maps, including the unique-number constraint the
// real store enforces with an index.

type fakeDesignRepo struct {
	mu      sync.Mutex
	designs map[string]*models.CardDesign

	getByIDsCalls int
	setBestCalls  int
}

func newFakeDesignRepo(designs ...*models.CardDesign) *fakeDesignRepo {
	repo := &fakeDesignRepo{designs: make(map[string]*models.CardDesign)}
	for _, d := range designs {
		repo.designs[d.DesignID] = d
	}
	return repo
}

func (r *fakeDesignRepo) GetByID(_ context.Context, designID string) (*models.CardDesign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.designs[designID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "card design", ID: designID}
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDesignRepo) GetByIDs(_ context.Context, designIDs []string) ([]*models.CardDesign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getByIDsCalls++
	out := make([]*models.CardDesign, 0, len(designIDs))
	for _, id := range designIDs {
		if d, ok := r.designs[id]; ok {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeDesignRepo) GetBySeasonID(_ context.Context, seasonID string) ([]*models.CardDesign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.designs))
	for id := range r.designs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*models.CardDesign
	for _, id := range ids {
		if r.designs[id].SeasonID == seasonID {
			copied := *r.designs[id]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeDesignRepo) SetBestRarityFound(_ context.Context, designID string, expected *string, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBestCalls++
	d, ok := r.designs[designID]
	if !ok {
		return false, &repositories.NotFoundError{Entity: "card design", ID: designID}
	}
	switch {
	case expected == nil && d.BestRarityFound != nil:
		return false, nil
	case expected != nil && (d.BestRarityFound == nil || *d.BestRarityFound != *expected):
		return false, nil
	}
	d.BestRarityFound = &next
	return true, nil
}

type numberKey struct {
	designID string
	rarityID string
	number   int
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*models.CardInstance
	taken     map[numberKey]bool

	// unopenedByRarity is returned verbatim by CountUnopenedByRarity.
	unopenedByRarity map[string]int

	// stealNumbers makes the next Create calls fail with
	// ErrCardNumberTaken, simulating a lost allocation race.
	stealNumbers int
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{
		instances: make(map[string]*models.CardInstance),
		taken:     make(map[numberKey]bool),
	}
}

func (r *fakeInstanceRepo) Create(_ context.Context, instance *models.CardInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stealNumbers > 0 {
		r.stealNumbers--
		r.taken[numberKey{instance.DesignID, instance.RarityID, instance.CardNumber}] = true
		return repositories.ErrCardNumberTaken
	}
	key := numberKey{instance.DesignID, instance.RarityID, instance.CardNumber}
	if r.taken[key] {
		return repositories.ErrCardNumberTaken
	}
	r.taken[key] = true
	copied := *instance
	r.instances[instance.InstanceID] = &copied
	return nil
}

func (r *fakeInstanceRepo) GetByID(_ context.Context, instanceID string) (*models.CardInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[instanceID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "card instance", ID: instanceID}
	}
	copied := *instance
	return &copied, nil
}

func (r *fakeInstanceRepo) GetByIDs(_ context.Context, instanceIDs []string) ([]*models.CardInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.CardInstance, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		if instance, ok := r.instances[id]; ok {
			copied := *instance
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) AllocatedNumbers(_ context.Context, designID, rarityID string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var numbers []int
	for key := range r.taken {
		if key.designID == designID && key.rarityID == rarityID {
			numbers = append(numbers, key.number)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (r *fakeInstanceRepo) CountAllocated(_ context.Context, designIDs []string) (map[string]map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]int)
	for _, id := range designIDs {
		out[id] = make(map[string]int)
	}
	for key := range r.taken {
		if perRarity, ok := out[key.designID]; ok {
			perRarity[key.rarityID]++
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) CountUnopenedByRarity(_ context.Context, _ []string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.unopenedByRarity))
	for rarityID, n := range r.unopenedByRarity {
		out[rarityID] = n
	}
	return out, nil
}

type fakePackTypeRepo struct {
	packTypes map[string]*models.PackType
}

func (r *fakePackTypeRepo) GetByID(_ context.Context, packTypeID string) (*models.PackType, error) {
	pt, ok := r.packTypes[packTypeID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "pack type", ID: packTypeID}
	}
	return pt, nil
}

func (r *fakePackTypeRepo) GetAll(_ context.Context) ([]*models.PackType, error) {
	var out []*models.PackType
	for _, pt := range r.packTypes {
		out = append(out, pt)
	}
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) CreateIfAbsent(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.UserID]; ok {
		return nil
	}
	copied := *user
	r.users[user.UserID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "user", ID: userID}
	}
	return user, nil
}

type fakePackRepo struct {
	mu    sync.Mutex
	packs []*models.Pack
}

func (r *fakePackRepo) Create(_ context.Context, pack *models.Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *pack
	r.packs = append(r.packs, &copied)
	return nil
}

func (r *fakePackRepo) GetByID(_ context.Context, packID string) (*models.Pack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pack := range r.packs {
		if pack.PackID == packID {
			return pack, nil
		}
	}
	return nil, &repositories.NotFoundError{Entity: "pack", ID: packID}
}

func (r *fakePackRepo) GetByEventID(_ context.Context, eventID string) ([]*models.Pack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Pack
	for _, pack := range r.packs {
		if pack.EventID == eventID {
			out = append(out, pack)
		}
	}
	return out, nil
}

type fakeEventRepo struct {
	mu         sync.Mutex
	events     map[string]*models.FulfillmentEvent
	packDeltas map[string]int64
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events:     make(map[string]*models.FulfillmentEvent),
		packDeltas: make(map[string]int64),
	}
}

func (r *fakeEventRepo) GetByEventID(_ context.Context, eventID string) (*models.FulfillmentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "fulfillment event", ID: eventID}
	}
	return event, nil
}

func (r *fakeEventRepo) Record(_ context.Context, event *models.FulfillmentEvent, userID string, packDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.EventID]; ok {
		return repositories.ErrEventAlreadyProcessed
	}
	copied := *event
	r.events[event.EventID] = &copied
	r.packDeltas[userID] += packDelta
	return nil
}

func testDesign(designID, seasonID, name string, details ...models.RarityDetail) *models.CardDesign {
	return &models.CardDesign{
		DesignID:      designID,
		SeasonID:      seasonID,
		Name:          name,
		RarityDetails: details,
	}
}
