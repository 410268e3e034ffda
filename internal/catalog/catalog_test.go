package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestaurant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/restaurants/20":
			w.Write([]byte(`{"id":20,"name":"Pied Piper Pizza","is_active":true,"min_order_amount":"10"}`))
		case "/restaurants/404":
			w.WriteHeader(http.StatusNotFound)
		case "/restaurants/500":
			w.WriteHeader(http.StatusInternalServerError)
		case "/restaurants/666":
			w.Write([]byte("not json"))
		}
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL, time.Second)
	ctx := context.Background()

	r, err := c.Restaurant(ctx, 20)
	assert.NoError(t, err)
	assert.Equal(t, uint64(20), r.ID)
	assert.True(t, r.IsActive)
	assert.Equal(t, "10", r.MinOrderAmount)

	// unknown id is a definitive answer, not a failure
	r, err = c.Restaurant(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, r)

	_, err = c.Restaurant(ctx, 500)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Restaurant(ctx, 666)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRestaurant_TransportError(t *testing.T) {
	c := NewHTTPCatalog("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.Restaurant(context.Background(), 20)
	assert.ErrorIs(t, err, ErrUnavailable)
}
