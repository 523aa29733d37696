package order

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const idPrefix = "NSH-"

// IDGenerator returns a new order id for an order placed at now.
type IDGenerator func(now time.Time) string

// TimestampID builds NSH-<unix ms>-<0..999>. Two orders placed in the same
// millisecond collide one time in a thousand; the later one overwrites the
// earlier in the collection.
func TimestampID(now time.Time) string {
	return idPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.Itoa(rand.IntN(1000))
}

// UUIDID builds NSH-<uuid v4>.
func UUIDID(time.Time) string {
	return idPrefix + uuid.NewString()
}

// GeneratorByName maps the ORDER_ID_GENERATOR setting to a generator.
func GeneratorByName(name string) (IDGenerator, error) {
	switch name {
	case "", "timestamp":
		return TimestampID, nil
	case "uuid":
		return UUIDID, nil
	}
	return nil, fmt.Errorf("unknown order id generator %q", name)
}
