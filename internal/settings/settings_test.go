package settings

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"overlaysync/internal/domain"
)

type failingStore struct {
	loadErr error
	saveErr error
}

func (f failingStore) Load(context.Context) (domain.Settings, bool, error) {
	return domain.Settings{}, false, f.loadErr
}

func (f failingStore) Save(context.Context, domain.Settings) error {
	return f.saveErr
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestNewServiceUsesDefaults(t *testing.T) {
	svc, err := NewService(context.Background(), NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	got := svc.Get()
	if !reflect.DeepEqual(got, clone(domain.DefaultSettings())) {
		t.Fatalf("expected defaults, got %+v", got)
	}
	opts := svc.ResolveOptions()
	if !opts.Fallback || opts.StrictMatch || opts.UseNGList {
		t.Fatalf("unexpected resolve options %+v", opts)
	}
}

func TestNewServiceLoadsStoredValue(t *testing.T) {
	store := NewMemoryStore()
	stored := domain.DefaultSettings()
	stored.Opacity = 40
	if err := store.Save(context.Background(), stored); err != nil {
		t.Fatalf("save: %v", err)
	}
	svc, err := NewService(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Get().Opacity != 40 {
		t.Fatalf("expected stored opacity, got %d", svc.Get().Opacity)
	}
}

func TestNewServiceLoadError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := NewService(context.Background(), failingStore{loadErr: boom}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	var calls []bool
	svc.OnChange(func(_ context.Context, prev, next domain.Settings) {
		if prev.LowPerformance == next.LowPerformance {
			return
		}
		calls = append(calls, next.LowPerformance)
	})

	next, err := svc.Update(context.Background(), domain.SettingsPatch{
		LowPerformance: boolPtr(true),
		NGList:         &domain.NGList{Words: []string{"spoiler"}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !next.LowPerformance || len(next.NGList.Words) != 1 {
		t.Fatalf("unexpected settings %+v", next)
	}
	if !reflect.DeepEqual(calls, []bool{true}) {
		t.Fatalf("listener calls = %v", calls)
	}

	saved, ok, _ := store.Load(context.Background())
	if !ok || !saved.LowPerformance {
		t.Fatalf("settings were not persisted: %+v", saved)
	}

	next.NGList.Words[0] = "mutated"
	if svc.Get().NGList.Words[0] != "spoiler" {
		t.Fatalf("Update result aliases internal state")
	}
}

func TestUpdateRejectsInvalidOpacity(t *testing.T) {
	svc, err := NewService(context.Background(), NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Update(context.Background(), domain.SettingsPatch{Opacity: intPtr(120)}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUpdateKeepsStateOnSaveFailure(t *testing.T) {
	boom := errors.New("boom")
	svc, err := NewService(context.Background(), failingStore{saveErr: boom}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	notified := false
	svc.OnChange(func(context.Context, domain.Settings, domain.Settings) { notified = true })

	if _, err := svc.Update(context.Background(), domain.SettingsPatch{Enable: boolPtr(false)}); !errors.Is(err, boom) {
		t.Fatalf("expected save error, got %v", err)
	}
	if !svc.Get().Enable || notified {
		t.Fatalf("failed update must not change state or notify")
	}
}

func TestSettingsDocBSON(t *testing.T) {
	s := domain.DefaultSettings()
	s.UseNGList = true
	s.NGList = domain.NGList{Words: []string{"a"}, UserIDs: []string{"u1"}}

	raw, err := bson.Marshal(toDoc(s))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc settingsDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.ID != settingsID {
		t.Fatalf("id = %q", doc.ID)
	}
	if got := fromDoc(doc); !reflect.DeepEqual(got, s) {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}
