package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	echoapi "github.com/trezcool/masomo-portal/apps/mockapi/echo"
	"github.com/trezcool/masomo-portal/apps/portal"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/services/notify"
	"github.com/trezcool/masomo-portal/storage/inmem"
)

// Password is shared by the accounts created with CreateAccount.
const Password = "Kx9!mQz#Tw4v"

// MockAPI is a running mock backend.
type MockAPI struct {
	echoapi.Server
	URL string
}

// StartMockAPI serves a fresh mock backend until the test ends.
func StartMockAPI(t *testing.T, opts ...func(*echoapi.Options)) *MockAPI {
	o := &echoapi.Options{SecretKey: []byte("test-secret"), DisableReqLogs: true}
	for _, opt := range opts {
		opt(o)
	}
	app := echoapi.NewServer(o)
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)
	return &MockAPI{Server: app, URL: srv.URL}
}

func CreateAccount(t *testing.T, api *MockAPI, name, email, role string) echoapi.Account {
	acc, err := api.DB().AddAccount(echoapi.Account{Name: name, Email: email, Role: role}, Password)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

// Config returns a test configuration pointing at baseURL.
func Config(baseURL string) *core.Config {
	return &core.Config{
		Env:     "TEST",
		Debug:   true,
		AppName: "Masomo",
		API: core.APIConfig{
			BaseURL:           baseURL,
			Timeout:           5 * time.Second,
			AttachCredentials: true,
			UserAgent:         "masomo-portal-test",
		},
		Storage: core.StorageConfig{Driver: "memory"},
	}
}

// Portal is a portal under test with its in-memory store & notification history.
type Portal struct {
	*portal.Portal
	Store    *inmemstore.Store
	Recorder *notifysvc.Recorder
}

// NewPortal builds a portal against api.
func NewPortal(t *testing.T, api *MockAPI) *Portal {
	store := inmemstore.New()
	rec := &notifysvc.Recorder{}
	p, err := portal.New(context.Background(), Config(api.URL), portal.Deps{
		Logger:    logsvc.NewDiscardLogger(),
		Store:     store,
		Notifiers: []notifysvc.Notifier{rec},
	})
	if err != nil {
		t.Fatalf("NewPortal() failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return &Portal{Portal: p, Store: store, Recorder: rec}
}
