package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	repogomock "github.com/ayesh156/roxeleye-crud/internal/repository/gomock"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/storage"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

var testArgon2Params = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 16}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceFixture struct {
	users   *userRepoState
	items   *itemRepoState
	store   *storage.LocalStore
	hasher  *security.PasswordHasher
	tokens  *security.JWTManager
	cache   *UserListCache
	auth    *AuthService
	userSvc *UserService
	itemSvc *ItemService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := newUserRepoState()
	items := newItemRepoState()

	userRepo := repogomock.NewMockUserRepository(ctrl)
	userRepo.EXPECT().FindByID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.FindByID)
	userRepo.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.FindByEmail)
	userRepo.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.Create)
	userRepo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.Update)
	userRepo.EXPECT().List(gomock.Any()).AnyTimes().DoAndReturn(users.List)
	userRepo.EXPECT().Delete(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.Delete)

	itemRepo := repogomock.NewMockItemRepository(ctrl)
	itemRepo.EXPECT().List(gomock.Any()).AnyTimes().DoAndReturn(items.List)
	itemRepo.EXPECT().ListPaged(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(items.ListPaged)
	itemRepo.EXPECT().FindByID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(items.FindByID)
	itemRepo.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(items.Create)
	itemRepo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(items.Update)
	itemRepo.EXPECT().Delete(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(items.Delete)

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	logger := discardLogger()
	pipeline := upload.NewPipeline(store, upload.DefaultOptions(), logger)
	hasher := security.NewPasswordHasher(testArgon2Params)
	tokens := security.NewJWTManager(testJWTSecret, "roxeleye-crud-test", time.Hour)
	cache := NewUserListCache(NewInMemoryListCacheStore(), time.Minute, logger)

	return &serviceFixture{
		users:   users,
		items:   items,
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		cache:   cache,
		auth:    NewAuthService(userRepo, hasher, tokens, cache, logger),
		userSvc: NewUserService(userRepo, hasher, pipeline, cache, logger),
		itemSvc: NewItemService(itemRepo, pipeline, logger),
	}
}

func (fx *serviceFixture) seedUser(t *testing.T, email, password string, role domain.Role, active bool) *domain.User {
	t.Helper()
	hash, err := fx.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, Name: "Seeded", PasswordHash: hash, Role: role, IsActive: active}
	if err := fx.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func identityOf(u *domain.User) security.Identity {
	return security.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

type userRepoState struct {
	mu        sync.Mutex
	nextID    uint
	byID      map[uint]domain.User
	listCalls int
	listGate  chan struct{}
}

func newUserRepoState() *userRepoState {
	return &userRepoState{nextID: 1, byID: make(map[uint]domain.User)}
}

func (r *userRepoState) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepoState) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == domain.NormalizeEmail(email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *userRepoState) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = domain.NormalizeEmail(user.Email)
	for _, u := range r.byID {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = r.nextID
	r.nextID++
	now := time.Unix(1700000000, 0).Add(time.Duration(user.ID) * time.Second)
	user.CreatedAt, user.UpdatedAt = now, now
	r.byID[user.ID] = *user
	return nil
}

func (r *userRepoState) Update(_ context.Context, id uint, updates map[string]any) (*domain.User, *domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before, ok := r.byID[id]
	if !ok {
		return nil, nil, repository.ErrUserNotFound
	}
	after := before
	for k, v := range updates {
		switch k {
		case "name":
			after.Name = v.(string)
		case "password_hash":
			after.PasswordHash = v.(string)
		case "role":
			after.Role = v.(domain.Role)
		case "is_active":
			after.IsActive = v.(bool)
		case "avatar":
			if v == nil {
				after.Avatar = nil
			} else {
				ref := v.(string)
				after.Avatar = &ref
			}
		}
	}
	r.byID[id] = after
	return &before, &after, nil
}

func (r *userRepoState) List(context.Context) ([]domain.User, error) {
	r.mu.Lock()
	r.listCalls++
	gate := r.listGate
	out := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *userRepoState) Delete(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	delete(r.byID, id)
	return &u, nil
}

func (r *userRepoState) listCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

type itemRepoState struct {
	mu        sync.Mutex
	nextID    uint
	byID      map[uint]domain.Item
	createErr error
}

func newItemRepoState() *itemRepoState {
	return &itemRepoState{nextID: 1, byID: make(map[uint]domain.Item)}
}

func (r *itemRepoState) List(context.Context) ([]domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Item, 0, len(r.byID))
	for _, it := range r.byID {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *itemRepoState) ListPaged(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.Item], error) {
	all, _ := r.List(ctx)
	res := repository.PageResult[domain.Item]{Page: req.Page, PageSize: req.PageSize, Total: int64(len(all))}
	start := (req.Page - 1) * req.PageSize
	if start < len(all) {
		end := min(start+req.PageSize, len(all))
		res.Items = all[start:end]
	}
	return res, nil
}

func (r *itemRepoState) FindByID(_ context.Context, id uint) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return &it, nil
}

func (r *itemRepoState) Create(_ context.Context, item *domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	item.ID = r.nextID
	r.nextID++
	r.byID[item.ID] = *item
	return nil
}

func (r *itemRepoState) Update(_ context.Context, id uint, updates map[string]any) (*domain.Item, *domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before, ok := r.byID[id]
	if !ok {
		return nil, nil, repository.ErrItemNotFound
	}
	after := before
	for k, v := range updates {
		switch k {
		case "name":
			after.Name = v.(string)
		case "description":
			after.Description = v.(*string)
		case "price":
			after.Price = v.(float64)
		case "quantity":
			after.Quantity = v.(int)
		case "image":
			if v == nil {
				after.Image = nil
			} else {
				ref := v.(string)
				after.Image = &ref
			}
		}
	}
	r.byID[id] = after
	return &before, &after, nil
}

func (r *itemRepoState) Delete(_ context.Context, id uint) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	delete(r.byID, id)
	return &it, nil
}
