package egress

import (
	"errors"
	"sync"
	"testing"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"metals-api.com", "metals-api.com"},
		{"HTTPS://WWW.Metals-API.com/v1/latest", "metals-api.com"},
		{"api.fastmarkets.com:443", "api.fastmarkets.com"},
		{"recyclingtoday.com.", "recyclingtoday.com"},
		{"scrapregister.com/path?q=1", "scrapregister.com"},
		{"  ", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "input %q", c.in)
	}
}

func TestCheckEgress(t *testing.T) {
	g := NewGate(DefaultAllowlist)

	assert.NoError(t, g.CheckEgress("https://metals-api.com/api/latest"))
	assert.NoError(t, g.CheckEgress("www.iscrapapp.com"))
	assert.NoError(t, g.CheckEgress("feeds.recyclingtoday.com"))

	err := g.CheckEgress("https://evil-metals-api.com/")
	var ev *domain.EgressViolation
	require.True(t, errors.As(err, &ev))
	assert.Equal(t, "evil-metals-api.com", ev.Domain)

	assert.Error(t, g.CheckEgress("metals-api.com.attacker.io"))
	assert.Error(t, g.CheckEgress("lbma.org.uk"))
	assert.Error(t, g.CheckEgress(""))
}

func TestReplace(t *testing.T) {
	g := NewGate([]string{"a.example"})

	require.NoError(t, g.Replace([]string{"WWW.B.example", "b.example", "c.example"}))
	assert.Equal(t, []string{"b.example", "c.example"}, g.Domains())
	assert.Error(t, g.CheckEgress("a.example"))
	assert.NoError(t, g.CheckEgress("b.example"))

	assert.Error(t, g.Replace(nil))
	assert.Error(t, g.Replace([]string{"  "}))
	assert.Equal(t, []string{"b.example", "c.example"}, g.Domains())
}

func TestGateConcurrentReplace(t *testing.T) {
	g := NewGate([]string{"a.example"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = g.Replace([]string{"a.example", "b.example"})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, g.CheckEgress("a.example"))
		}()
	}
	wg.Wait()
}
