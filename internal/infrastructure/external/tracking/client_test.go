package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/status"
	"github.com/garyjia/onecost/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:  srv.URL + "/",
		Username: "robo",
		Password: "senha",
		Retry:    retry.Fixed(3, time.Millisecond),
	}, zap.NewNop())
}

func authRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("username") != "robo" || r.FormValue("password") != "senha" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"bearer","user_id":3}`)
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":3,"username":"robo","is_admin":false}`)
	})
}

func TestClient_Authenticate(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)
	c := newTestClient(t, mux)

	id, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", id.Token)
	assert.Equal(t, int64(3), id.ActorID)
}

func TestClient_Authenticate_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)
	c := newTestClient(t, mux)
	c.config.Password = "wrong"

	_, err := c.Authenticate(context.Background())
	assert.True(t, errors.Is(err, port.ErrUnauthenticated))
}

func TestClient_ListPending_Pages(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)

	var gotExclude string
	mux.HandleFunc("/solicitacoes/", func(w http.ResponseWriter, r *http.Request) {
		gotExclude = r.URL.Query().Get("status_robo_ne")
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		n := pageSize
		if skip >= pageSize {
			n = 2
		}
		recs := make([]map[string]interface{}, 0, n)
		for i := 0; i < n; i++ {
			recs = append(recs, map[string]interface{}{
				"id": skip + i + 1, "npj": "2023/0001", "numero_solicitacao": "55",
				"valor": "120.00", "status_robo": "Pendente",
			})
		}
		_ = json.NewEncoder(w).Encode(recs)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	_, err := c.Authenticate(ctx)
	require.NoError(t, err)

	recs, err := c.ListPending(ctx, status.Terminal())
	require.NoError(t, err)
	assert.Len(t, recs, pageSize+2)
	assert.Equal(t, strings.Join(status.Terminal(), ","), gotExclude)
	assert.Equal(t, "120", recs[0].Valor.String())
}

func TestClient_UpdateRecord_SendsOnlySetFields(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)

	var payload map[string]json.RawMessage
	mux.HandleFunc("/solicitacoes/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		fmt.Fprint(w, `{"id":7,"status_robo":"Pendente","valor":"120.00"}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	_, err := c.Authenticate(ctx)
	require.NoError(t, err)

	got, err := c.UpdateRecord(ctx, 7, entity.SolicitacaoUpdate{
		StatusRobo:   entity.Set(status.Pendente),
		StatusPortal: entity.Null[string](),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	assert.Len(t, payload, 2)
	assert.JSONEq(t, `"Pendente"`, string(payload["status_robo"]))
	assert.JSONEq(t, `null`, string(payload["status_portal"]))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)

	var calls int32
	mux.HandleFunc("/solicitacoes/reset-erros", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"count":4}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	_, err := c.Authenticate(ctx)
	require.NoError(t, err)

	n, err := c.ResetErrorStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	mux := http.NewServeMux()
	authRoutes(mux)

	var calls int32
	mux.HandleFunc("/solicitacoes/9", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"success":false,"error":"invalid status transition"}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	_, err := c.Authenticate(ctx)
	require.NoError(t, err)

	_, err = c.UpdateRecord(ctx, 9, entity.SolicitacaoUpdate{StatusRobo: entity.Set(status.Processando)})
	assert.True(t, errors.Is(err, port.ErrConflict))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
