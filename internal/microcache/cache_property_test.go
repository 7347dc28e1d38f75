//go:build property
// +build property

package microcache

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMicroCacheProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("repeat requests within the TTL are byte-identical", prop.ForAll(
		func(segment string, repeats int) bool {
			var calls atomic.Int64
			c := New(10, time.Minute)
			h := c.Middleware(allowAll)(countingHandler(&calls, http.StatusOK))

			url := "/en/" + segment
			first := httptest.NewRecorder()
			h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, url, nil))
			for i := 0; i < repeats; i++ {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
				if rec.Body.String() != first.Body.String() {
					return false
				}
			}
			return calls.Load() == 1
		},
		gen.Identifier(),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
