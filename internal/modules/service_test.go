package modules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	modules map[string]Module
	listErr error
}

func newMemoryRepo(mods ...Module) *memoryRepo {
	repo := &memoryRepo{modules: make(map[string]Module)}
	for _, m := range mods {
		repo.modules[m.Key] = m
	}
	return repo
}

func (r *memoryRepo) ListActive(ctx context.Context, filter *ActorType) ([]Module, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []Module
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) Upsert(ctx context.Context, m Module) error {
	r.modules[m.Key] = m
	return nil
}

func TestListModulesFiltersAndOrders(t *testing.T) {
	repo := newMemoryRepo(
		Module{Key: "invoices", DisplayName: "Invoices", ActorType: ActorAll, Active: true, SortOrder: 2},
		Module{Key: "settings", DisplayName: "Settings", ActorType: ActorAdmin, Active: true, SortOrder: 1},
		Module{Key: "store", DisplayName: "Store", ActorType: ActorClient, Active: true, SortOrder: 2},
		Module{Key: "archive", DisplayName: "Archive", ActorType: ActorAll, Active: false, SortOrder: 0},
		Module{Key: "billing", DisplayName: "Billing", ActorType: ActorAll, Active: true, SortOrder: 2},
	)
	reg := NewRegistry(repo, nil)

	client := ActorClient
	got := reg.ListModules(context.Background(), &client)
	keys := make([]string, 0, len(got))
	for _, m := range got {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"billing", "invoices", "store"}, keys)

	all := reg.ListModules(context.Background(), nil)
	require.Len(t, all, 4)
	assert.Equal(t, "settings", all[0].Key)
}

func TestListModulesNeverFails(t *testing.T) {
	var nilRegistry *Registry
	assert.Empty(t, nilRegistry.ListModules(context.Background(), nil))

	assert.NotNil(t, NewRegistry(nil, nil).ListModules(context.Background(), nil))

	repo := newMemoryRepo()
	repo.listErr = errors.New("relation \"modules\" does not exist")
	got := NewRegistry(repo, nil).ListModules(context.Background(), nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSeedAndActiveKeys(t *testing.T) {
	repo := newMemoryRepo()
	reg := NewRegistry(repo, nil)
	require.NoError(t, reg.Seed(context.Background(), DefaultCatalog))
	require.NoError(t, reg.Seed(context.Background(), DefaultCatalog))

	keys, err := reg.ActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, len(DefaultCatalog))
	assert.Contains(t, keys, KeyInvoices)
}

func TestParseActorType(t *testing.T) {
	f, ok := ParseActorType("client")
	require.True(t, ok)
	require.NotNil(t, f)
	assert.Equal(t, ActorClient, *f)

	f, ok = ParseActorType("ALL")
	assert.True(t, ok)
	assert.Nil(t, f)

	_, ok = ParseActorType("robot")
	assert.False(t, ok)
}

func TestHandlerList(t *testing.T) {
	repo := newMemoryRepo(
		Module{Key: "store", DisplayName: "Store", ActorType: ActorClient, Active: true},
		Module{Key: "settings", DisplayName: "Settings", ActorType: ActorAdmin, Active: true},
	)
	h := NewHandler(nil, NewRegistry(repo, nil))
	r := chi.NewRouter()
	r.Route("/modules", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/modules?type=CLIENT", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []Module `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "store", body.Data[0].Key)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/modules?type=robot", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
