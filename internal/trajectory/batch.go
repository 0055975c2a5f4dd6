package trajectory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/AoWangg/mrra/internal/models"
)

// ErrNoData indicates a batch could not be built because every input
// ping was dropped as invalid.
var ErrNoData = errors.New("trajectory: no valid pings")

// ErrUnknownUser indicates a lookup for a user with no pings in the batch.
var ErrUnknownUser = errors.New("trajectory: unknown user")

// Batch owns the normalized, time-sorted location pings of one input
// dataset, grouped by user. A Batch is read-only after construction; its
// identity for caching purposes is ContentHash.
type Batch struct {
	byUser  map[string][]models.LocationPing
	userIDs []string // sorted
	loc     *time.Location
	hash    string
}

// Ingest normalizes raw pings into a Batch. Pings with non-finite or
// out-of-range coordinates or a zero timestamp are dropped. Each user's
// pings are sorted by timestamp, and a local-time view is computed in
// loc (UTC when nil). Returns ErrNoData if nothing survives.
func Ingest(pings []models.LocationPing, loc *time.Location) (*Batch, error) {
	if loc == nil {
		loc = time.UTC
	}

	byUser := make(map[string][]models.LocationPing)
	dropped := 0
	for _, p := range pings {
		if !validPing(p) {
			dropped++
			continue
		}
		p.Timestamp = p.Timestamp.UTC()
		p.LocalTime = p.Timestamp.In(loc)
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}
	if dropped > 0 {
		log.Printf("[TrajectoryBatch] Dropped %d invalid pings", dropped)
	}
	if len(byUser) == 0 {
		return nil, ErrNoData
	}

	userIDs := make([]string, 0, len(byUser))
	for uid := range byUser {
		userIDs = append(userIDs, uid)
	}
	sort.Strings(userIDs)

	for _, uid := range userIDs {
		seq := byUser[uid]
		sort.Slice(seq, func(i, j int) bool {
			if !seq[i].Timestamp.Equal(seq[j].Timestamp) {
				return seq[i].Timestamp.Before(seq[j].Timestamp)
			}
			if seq[i].Latitude != seq[j].Latitude {
				return seq[i].Latitude < seq[j].Latitude
			}
			return seq[i].Longitude < seq[j].Longitude
		})
		byUser[uid] = seq
	}

	b := &Batch{byUser: byUser, userIDs: userIDs, loc: loc}
	b.hash = b.computeHash()
	return b, nil
}

func validPing(p models.LocationPing) bool {
	if p.UserID == "" || p.Timestamp.IsZero() {
		return false
	}
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return false
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return false
	}
	return true
}

// Users returns the batch's user ids in sorted order.
func (b *Batch) Users() []string {
	out := make([]string, len(b.userIDs))
	copy(out, b.userIDs)
	return out
}

// ForUser returns the time-sorted pings for one user. The returned slice
// must not be modified.
func (b *Batch) ForUser(userID string) ([]models.LocationPing, error) {
	seq, ok := b.byUser[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return seq, nil
}

// Location returns the timezone used for the batch's local-time view.
func (b *Batch) Location() *time.Location {
	return b.loc
}

// PingCount returns the total number of pings across all users.
func (b *Batch) PingCount() int {
	n := 0
	for _, seq := range b.byUser {
		n += len(seq)
	}
	return n
}

// ContentHash returns a stable digest over the batch's normalized
// content: order-independent across users, order-dependent within one
// user's sorted sequence. Two batches built from the same rows in any
// order hash identically.
func (b *Batch) ContentHash() string {
	return b.hash
}

func (b *Batch) computeHash() string {
	outer := sha256.New()
	for _, uid := range b.userIDs {
		inner := sha256.New()
		for _, p := range b.byUser[uid] {
			inner.Write([]byte(strconv.FormatInt(p.Timestamp.Unix(), 10)))
			inner.Write([]byte{'|'})
			inner.Write([]byte(strconv.FormatFloat(p.Latitude, 'f', -1, 64)))
			inner.Write([]byte{'|'})
			inner.Write([]byte(strconv.FormatFloat(p.Longitude, 'f', -1, 64)))
			inner.Write([]byte{'\n'})
		}
		outer.Write([]byte(uid))
		outer.Write([]byte{':'})
		outer.Write(inner.Sum(nil))
		outer.Write([]byte{'\n'})
	}
	return hex.EncodeToString(outer.Sum(nil))
}
