package rdio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mmcdole/rdioexport/internal/adapter"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeService answers web service methods from handler funcs keyed by method name
type fakeService struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []string
	methods map[string]func(form map[string]string) (status int, body string)
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	fs := &fakeService{t: t, methods: map[string]func(map[string]string) (int, string){}}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	require.Equal(fs.t, http.MethodPost, r.Method)
	require.Equal(fs.t, "Bearer test-token", r.Header.Get("Authorization"))
	require.NoError(fs.t, r.ParseForm())

	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	method := form["method"]

	fs.mu.Lock()
	fs.calls = append(fs.calls, method)
	h, ok := fs.methods[method]
	fs.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"error","message":"unknown method %s"}`, method)
		return
	}
	status, body := h(form)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func ok(result string) (int, string) {
	return http.StatusOK, `{"status":"ok","result":` + result + `}`
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, StaticToken("test-token"), adapter.NullLogger())
}

func TestFindUser(t *testing.T) {
	fs, srv := newFakeService(t)
	fs.methods["findUser"] = func(form map[string]string) (int, string) {
		if form["email"] == "ada@example.com" || form["vanityName"] == "ada" {
			return ok(`{"key":"s1","firstName":"Ada","lastName":"Lovelace","vanityName":"ada","url":"/people/ada/","isProtected":false}`)
		}
		return ok(`null`)
	}
	c := newTestClient(srv)

	user, err := c.FindUser(t.Context(), "ada@example.com", "")
	require.NoError(t, err)
	require.Equal(t, &domain.User{
		Key: "s1", FirstName: "Ada", LastName: "Lovelace", Username: "ada", URL: "/people/ada/",
	}, user)

	user, err = c.FindUser(t.Context(), "", "ada")
	require.NoError(t, err)
	require.Equal(t, "s1", user.Key)

	user, err = c.FindUser(t.Context(), "", "ghost")
	require.NoError(t, err)
	require.Nil(t, user)

	_, err = c.FindUser(t.Context(), "", "")
	require.Error(t, err)
}

func TestFindUser_NotFoundError(t *testing.T) {
	fs, srv := newFakeService(t)
	fs.methods["findUser"] = func(map[string]string) (int, string) {
		return http.StatusOK, `{"status":"error","message":"User not found"}`
	}

	user, err := newTestClient(srv).FindUser(t.Context(), "", "ghost")
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestCall_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ``, domain.ErrAuthFailed},
		{"api error", http.StatusOK, `{"status":"error","message":"bad keys"}`, domain.ErrAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, srv := newFakeService(t)
			fs.methods["get"] = func(map[string]string) (int, string) { return tt.status, tt.body }

			err := newTestClient(srv).LoadObjects(t.Context(), store.NewMemoryObjectStore(), []string{"t1"}, nil)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("server error", func(t *testing.T) {
		fs, srv := newFakeService(t)
		fs.methods["get"] = func(map[string]string) (int, string) { return http.StatusInternalServerError, `oops` }
		err := newTestClient(srv).LoadObjects(t.Context(), store.NewMemoryObjectStore(), []string{"t1"}, nil)
		require.ErrorContains(t, err, "unexpected status code: 500")
	})

	t.Run("offline", func(t *testing.T) {
		_, srv := newFakeService(t)
		c := newTestClient(srv)
		srv.Close()
		_, err := c.FindUser(t.Context(), "", "ada")
		require.ErrorIs(t, err, domain.ErrServerOffline)
	})

	t.Run("cancelled", func(t *testing.T) {
		_, srv := newFakeService(t)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := newTestClient(srv).FindUser(ctx, "", "ada")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadUserPlaylists_Pages(t *testing.T) {
	fs, srv := newFakeService(t)
	var seenKinds []string
	fs.methods["getUserPlaylists"] = func(form map[string]string) (int, string) {
		require.Equal(t, "s1", form["user"])
		seenKinds = append(seenKinds, form["kind"])
		start, _ := strconv.Atoi(form["start"])
		count, _ := strconv.Atoi(form["count"])
		require.Equal(t, 2, count)

		all := []string{"p1", "p2", "p3"}
		var page []string
		for i := start; i < len(all) && i < start+count; i++ {
			page = append(page, fmt.Sprintf(`{"key":%q,"type":"p"}`, all[i]))
		}
		return ok("[" + strings.Join(page, ",") + "]")
	}

	c := newTestClient(srv)
	c.SetPageSize(2)
	keys := domain.NewUserKeyStore(&domain.User{Key: "s1"})

	require.NoError(t, c.LoadUserPlaylists(t.Context(), domain.PlaylistKindOwned, keys))
	require.Equal(t, []string{"p1", "p2", "p3"}, keys.PlaylistsKeys[domain.PlaylistKindOwned])
	require.Equal(t, []string{"owned", "owned"}, seenKinds)
}

func TestLoadFavoritesAndSyncedKeys(t *testing.T) {
	fs, srv := newFakeService(t)
	fs.methods["getFavorites"] = func(map[string]string) (int, string) {
		return ok(`[{"key":"a1","type":"a"},{"key":"r1","type":"r"}]`)
	}
	fs.methods["getSynced"] = func(map[string]string) (int, string) {
		return ok(`[{"key":"t1","type":"t"}]`)
	}

	keys := domain.NewUserKeyStore(&domain.User{Key: "s1"})
	require.NoError(t, newTestClient(srv).LoadFavoritesAndSyncedKeys(t.Context(), keys))
	require.Equal(t, []string{"a1", "r1"}, keys.FavoritesKeys)
	require.Equal(t, []string{"t1"}, keys.SyncedKeys)
}

func TestLoadObjects_StoresThenVisits(t *testing.T) {
	fs, srv := newFakeService(t)
	var batches []string
	fs.methods["get"] = func(form map[string]string) (int, string) {
		batches = append(batches, form["keys"])
		objs := map[string]json.RawMessage{}
		for _, k := range strings.Split(form["keys"], ",") {
			if k == "missing" {
				continue
			}
			objs[k] = json.RawMessage(fmt.Sprintf(`{"key":%q,"type":"t","name":"Song %s","albumKey":"a1"}`, k, k))
		}
		data, _ := json.Marshal(objs)
		return ok(string(data))
	}

	c := newTestClient(srv)
	c.SetBatchSize(2)
	s := store.NewMemoryObjectStore()

	var visited []string
	err := c.LoadObjects(t.Context(), s, []string{"t1", "t2", "missing"}, func(obj *domain.Object) {
		require.True(t, s.ContainsKey(obj.Key), "object is stored before it is visited")
		visited = append(visited, obj.Key)
	})
	require.NoError(t, err)

	require.Equal(t, []string{"t1,t2", "missing"}, batches)
	require.Equal(t, []string{"t1", "t2"}, visited)
	require.Equal(t, []string{"t1", "t2"}, s.Keys())

	obj, found := s.Get("t1")
	require.True(t, found)
	require.Equal(t, "Song t1", obj.Name)
	require.Equal(t, "t", obj.Type)
}

func TestFetchAll_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	_, err := fetchAll(ctx, func(_ context.Context, start, count int) ([]int, error) {
		calls++
		cancel()
		return make([]int, count), nil
	}, 10)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
