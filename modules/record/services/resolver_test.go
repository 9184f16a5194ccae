package services

import (
	"sync"
	"testing"

	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

type customService struct {
	*DefaultService
}

func TestResolver(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.deps)

	svc, err := r.Resolve("Contact")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, ok := svc.(*DefaultService); !ok || svc.EntityType() != "Contact" {
		t.Fatalf("svc=%T type=%q", svc, svc.EntityType())
	}

	var gotType string
	r.Register("Account", func(entityType string, deps Deps) (ports.RecordService, error) {
		gotType = entityType
		base, err := NewDefaultService(entityType, deps)
		if err != nil {
			return nil, err
		}
		return customService{DefaultService: base}, nil
	})
	svc, err = r.Resolve("Account")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, ok := svc.(customService); !ok || gotType != "Account" {
		t.Fatalf("svc=%T gotType=%q", svc, gotType)
	}

	if _, err := r.Resolve("Nope"); !httperr.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestResolver_BuildsOncePerType(t *testing.T) {
	f := newFixture(t)
	r := NewResolver(f.deps)

	builds := 0
	r.Register("Account", func(entityType string, deps Deps) (ports.RecordService, error) {
		builds++
		return NewDefaultService(entityType, deps)
	})

	var wg sync.WaitGroup
	got := make([]ports.RecordService, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc, err := r.Resolve("Account")
			if err != nil {
				t.Errorf("err=%v", err)
			}
			got[i] = svc
		}()
	}
	wg.Wait()
	if builds != 1 {
		t.Fatalf("builds=%d", builds)
	}
	for _, svc := range got[1:] {
		if svc != got[0] {
			t.Fatal("expected the same service instance")
		}
	}

	a, _ := r.Resolve("Contact")
	b, _ := r.Resolve("Contact")
	if a != b {
		t.Fatal("expected default service reuse")
	}

	r.Register("Account", func(entityType string, deps Deps) (ports.RecordService, error) {
		builds++
		return NewDefaultService(entityType, deps)
	})
	if _, err := r.Resolve("Account"); err != nil || builds != 2 {
		t.Fatalf("builds=%d err=%v", builds, err)
	}

	if _, err := r.Resolve("Nope"); !httperr.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
	if _, err := r.Resolve("Nope"); !httperr.IsNotFound(err) {
		t.Fatalf("second lookup err=%v", err)
	}
}

func TestNewDefaultService_RequiresStore(t *testing.T) {
	f := newFixture(t)
	deps := f.deps
	deps.Store = nil
	if _, err := NewDefaultService("Account", deps); err == nil {
		t.Fatalf("expected error")
	}
}
