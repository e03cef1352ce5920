package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scoopstack/backend-scoopstack/internal/obs"
)

// serialScript increments the monthly counter atomically, wrapping back to 1
// after 9999 so the printed number never exceeds four digits.
var serialScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v > 9999 then
  v = 1
  redis.call('SET', KEYS[1], v)
end
return v
`)

// SerialNumber is an allocated bill serial.
type SerialNumber struct {
	Value   string `json:"serialNo"`
	Counter int    `json:"-"`
}

// Sequence allocates monthly bill serial numbers backed by Redis.
type Sequence struct {
	Client *redis.Client
	Now    func() time.Time
}

// Next allocates the next serial for the current month. The printed form is
// the two-digit month followed by the zero-padded counter, so August's first
// bill reads 080001. Each month gets its own counter key.
func (s Sequence) Next(ctx context.Context) (SerialNumber, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	key := fmt.Sprintf("serial-%02d-%d", int(now.Month()), now.Year())

	counter, err := serialScript.Run(ctx, s.Client, []string{key}).Int()
	if err != nil {
		return SerialNumber{}, fmt.Errorf("allocate serial: %w", err)
	}
	obs.IncSerialAllocated()
	return SerialNumber{
		Value:   fmt.Sprintf("%02d%04d", int(now.Month()), counter),
		Counter: counter,
	}, nil
}
