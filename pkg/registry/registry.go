// Package registry implements the tiered polyform catalog.
//
// The registry owns the symbol table and the lifecycle of every catalog
// entry. Candidates enter at tier 2 after schema validation, accumulate
// observation frequency and stability evidence, and are promoted to tier 3
// (and later tier 4) when they clear the configured thresholds. Promotion is
// at-most-once per entry: a compare-and-swap on the entry status guarantees
// that concurrent promoters cannot double-assign symbols. Superseded entries
// are kept forever; a symbol is retired only by explicit demotion and never
// silently reused.
//
// The registry serializes to newline-delimited JSON with a trailing SHA-256
// checksum line, and exposes the same checksum as Digest() so two replicas
// can compare catalogs cheaply.
//
// Example Usage:
//
//	reg := registry.New(nil)
//	sym, err := reg.IngestCandidate(desc)
//
//	for i := 0; i < 12; i++ {
//		reg.Observe(sym)
//	}
//	reg.RecordStability(sym, 0.9)
//
//	promoted, err := reg.Promote(sym)
//	// promoted.Tier == symbol.TierPromoted
package registry

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/symbol"
)

// Common errors
var (
	ErrNotEligible   = errors.New("registry: entry not eligible for promotion")
	ErrSuperseded    = errors.New("registry: entry already superseded")
	ErrRetired       = errors.New("registry: entry retired")
	ErrInvalidSchema = errors.New("registry: descriptor fails schema validation")
	ErrRegistryDrift = errors.New("registry: checksum mismatch")
)

// Entry status values. Transitions go through compareAndSwap so promotion
// happens at most once per entry.
const (
	statusActive uint32 = iota
	statusPromoting
	statusSuperseded
	statusRetired
)

func statusString(s uint32) string {
	switch s {
	case statusActive, statusPromoting:
		return "active"
	case statusSuperseded:
		return "superseded"
	case statusRetired:
		return "retired"
	}
	return "unknown"
}

func statusFromString(s string) (uint32, error) {
	switch s {
	case "active":
		return statusActive, nil
	case "superseded":
		return statusSuperseded, nil
	case "retired":
		return statusRetired, nil
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrRegistryDrift, s)
}

// Config tunes the promotion pipeline.
type Config struct {
	// MinFrequency is the observation count required for promotion.
	// Default 10.
	MinFrequency int64
	// MinStability is the stability ratio required for promotion.
	// Default 0.85.
	MinStability float64
}

// DefaultConfig returns the policy defaults.
func DefaultConfig() *Config {
	return &Config{
		MinFrequency: 10,
		MinStability: 0.85,
	}
}

// entry is one catalog row. The descriptor here is authoritative; the codec
// keeps only the registration-time copy for duplicate detection.
type entry struct {
	sym        symbol.Symbol
	desc       *polyform.Descriptor
	status     atomic.Uint32
	promotedTo symbol.Symbol
}

// Registry is the tiered catalog of polyform descriptors.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	codec   *symbol.Codec
	entries map[symbol.Symbol]*entry
	cfg     *Config
}

// New creates an empty registry. A nil config uses DefaultConfig.
func New(cfg *Config) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Registry{
		codec:   symbol.NewCodec(),
		entries: make(map[symbol.Symbol]*entry),
		cfg:     cfg,
	}
}

// ValidateSchema checks the fields a catalog entry must carry: a valid
// composition, metadata within numeric ranges, and a geometry reference.
func ValidateSchema(d *polyform.Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidSchema)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if d.GeometryRef == "" {
		return fmt.Errorf("%w: missing geometry reference", ErrInvalidSchema)
	}
	return nil
}

// Register inserts a descriptor at an explicit tier, used to seed the
// primitive (tier 1) and atomic chain (tier 0) catalogs.
func (r *Registry) Register(d *polyform.Descriptor, tier int) (symbol.Symbol, error) {
	if err := d.Validate(); err != nil {
		return symbol.Symbol{}, err
	}
	return r.insert(d, tier)
}

// IngestCandidate validates the descriptor schema and registers it at the
// candidate tier.
func (r *Registry) IngestCandidate(d *polyform.Descriptor) (symbol.Symbol, error) {
	if err := ValidateSchema(d); err != nil {
		return symbol.Symbol{}, err
	}
	return r.insert(d, symbol.TierCandidate)
}

func (r *Registry) insert(d *polyform.Descriptor, tier int) (symbol.Symbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sym, err := r.codec.Encode(d, tier)
	if err != nil {
		return symbol.Symbol{}, err
	}
	e := &entry{sym: sym, desc: d.Clone()}
	e.status.Store(statusActive)
	r.entries[sym] = e
	return sym, nil
}

// Decode returns the authoritative descriptor for a symbol, including
// frequency and stability accumulated since registration.
func (r *Registry) Decode(sym symbol.Symbol) (*polyform.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}
	return e.desc.Clone(), nil
}

// Lookup returns the symbol registered for a composition key at a tier.
func (r *Registry) Lookup(compositionKey string, tier int) (symbol.Symbol, bool) {
	return r.codec.Lookup(compositionKey, tier)
}

// Observe increments the observation frequency of an entry.
func (r *Registry) Observe(sym symbol.Symbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sym]
	if !ok {
		return fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}
	e.desc.Metadata.Frequency++
	return nil
}

// RecordStability updates the observed stability ratio of an entry.
func (r *Registry) RecordStability(sym symbol.Symbol, ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: stability %v outside [0,1]", polyform.ErrInvalidMetadata, ratio)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sym]
	if !ok {
		return fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}
	e.desc.Metadata.Stability = ratio
	return nil
}

// Promote moves an eligible entry one tier up (candidate to promoted, or
// promoted to archival) and assigns it a fresh symbol. The original entry is
// marked superseded and kept; its symbol is never reused.
//
// Eligibility requires frequency >= MinFrequency and stability >=
// MinStability; otherwise ErrNotEligible. Promotion is at-most-once: a
// concurrent or repeated Promote on the same symbol fails with ErrSuperseded.
func (r *Registry) Promote(sym symbol.Symbol) (symbol.Symbol, error) {
	r.mu.RLock()
	e, ok := r.entries[sym]
	r.mu.RUnlock()
	if !ok {
		return symbol.Symbol{}, fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}

	if sym.Tier != symbol.TierCandidate && sym.Tier != symbol.TierPromoted {
		return symbol.Symbol{}, fmt.Errorf("%w: tier %d entries do not promote", ErrNotEligible, sym.Tier)
	}

	// Claim the entry. Exactly one promoter can win this swap.
	if !e.status.CompareAndSwap(statusActive, statusPromoting) {
		switch e.status.Load() {
		case statusRetired:
			return symbol.Symbol{}, fmt.Errorf("%w: %s", ErrRetired, sym)
		default:
			return symbol.Symbol{}, fmt.Errorf("%w: %s", ErrSuperseded, sym)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e.desc.Metadata.Frequency < r.cfg.MinFrequency {
		e.status.Store(statusActive)
		return symbol.Symbol{}, fmt.Errorf("%w: frequency %d < %d",
			ErrNotEligible, e.desc.Metadata.Frequency, r.cfg.MinFrequency)
	}
	if e.desc.Metadata.Stability < r.cfg.MinStability {
		e.status.Store(statusActive)
		return symbol.Symbol{}, fmt.Errorf("%w: stability %.2f < %.2f",
			ErrNotEligible, e.desc.Metadata.Stability, r.cfg.MinStability)
	}

	promoted, err := r.codec.Encode(e.desc, sym.Tier+1)
	if err != nil {
		e.status.Store(statusActive)
		return symbol.Symbol{}, err
	}

	ne := &entry{sym: promoted, desc: e.desc.Clone()}
	ne.status.Store(statusActive)
	r.entries[promoted] = ne

	e.promotedTo = promoted
	e.status.Store(statusSuperseded)
	return promoted, nil
}

// Demote retires an active entry. The symbol stays in the catalog so it can
// never be reassigned; only its status changes.
func (r *Registry) Demote(sym symbol.Symbol) error {
	r.mu.RLock()
	e, ok := r.entries[sym]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}
	if !e.status.CompareAndSwap(statusActive, statusRetired) {
		return fmt.Errorf("%w: %s", ErrSuperseded, sym)
	}
	return nil
}

// Status returns the lifecycle status of an entry ("active", "superseded",
// "retired") and, for superseded entries, the symbol that replaced it.
func (r *Registry) Status(sym symbol.Symbol) (string, symbol.Symbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sym]
	if !ok {
		return "", symbol.Symbol{}, fmt.Errorf("%w: %s", symbol.ErrUnknownSymbol, sym)
	}
	return statusString(e.status.Load()), e.promotedTo, nil
}

// Len returns the number of catalog entries, superseded and retired included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Record is the serialized form of one catalog entry.
type Record struct {
	Symbol      string            `json:"symbol"`
	Tier        int               `json:"tier"`
	Composition []int             `json:"composition"`
	GeometryRef string            `json:"geometryRef,omitempty"`
	Metadata    polyform.Metadata `json:"metadata"`
	Status      string            `json:"status"`
	PromotedTo  string            `json:"promotedTo,omitempty"`
}

// Records returns every catalog entry sorted by symbol text. The sort makes
// serialization and digests independent of insertion order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.entries))
	for sym, e := range r.entries {
		rec := Record{
			Symbol:      sym.String(),
			Tier:        sym.Tier,
			Composition: append([]int(nil), e.desc.Composition...),
			GeometryRef: e.desc.GeometryRef,
			Metadata:    e.desc.Metadata,
			Status:      statusString(e.status.Load()),
		}
		if !e.promotedTo.Zero() {
			rec.PromotedTo = e.promotedTo.String()
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Digest returns the SHA-256 hex digest (64 characters) of the key-sorted
// catalog serialization. Two registries with the same entries produce the
// same digest regardless of insertion order.
func (r *Registry) Digest() (string, error) {
	payload, err := marshalRecords(r.Records())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// checksumLine terminates a serialized registry.
type checksumLine struct {
	Checksum string `json:"checksum"`
}

func marshalRecords(recs []Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Serialize renders the catalog as newline-delimited JSON, one record per
// symbol, followed by a checksum line over the preceding bytes.
func (r *Registry) Serialize() ([]byte, error) {
	payload, err := marshalRecords(r.Records())
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	tail, err := json.Marshal(checksumLine{Checksum: hex.EncodeToString(sum[:])})
	if err != nil {
		return nil, err
	}
	payload = append(payload, tail...)
	payload = append(payload, '\n')
	return payload, nil
}

// Deserialize rebuilds a registry from Serialize output.
//
// The checksum line is verified first; any mismatch fails with
// ErrRegistryDrift before a single record is applied.
func Deserialize(data []byte, cfg *Config) (*Registry, error) {
	var (
		payload bytes.Buffer
		recs    []Record
		sum     string
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if sum != "" {
			return nil, fmt.Errorf("%w: data after checksum line", ErrRegistryDrift)
		}

		var tail checksumLine
		if err := json.Unmarshal(line, &tail); err == nil && tail.Checksum != "" {
			sum = tail.Checksum
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistryDrift, err)
		}
		recs = append(recs, rec)
		payload.Write(line)
		payload.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if sum == "" {
		return nil, fmt.Errorf("%w: missing checksum line", ErrRegistryDrift)
	}

	got := sha256.Sum256(payload.Bytes())
	if hex.EncodeToString(got[:]) != sum {
		return nil, fmt.Errorf("%w: checksum %s does not match payload", ErrRegistryDrift, sum)
	}

	return FromRecords(recs, cfg)
}

// FromRecords rebuilds a registry from already-verified records.
func FromRecords(recs []Record, cfg *Config) (*Registry, error) {
	r := New(cfg)
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range recs {
		sym, err := symbol.Parse(rec.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistryDrift, err)
		}
		if sym.Tier != rec.Tier {
			return nil, fmt.Errorf("%w: symbol %s claims tier %d", ErrRegistryDrift, rec.Symbol, rec.Tier)
		}
		status, err := statusFromString(rec.Status)
		if err != nil {
			return nil, err
		}

		desc := &polyform.Descriptor{
			Composition: append([]int(nil), rec.Composition...),
			GeometryRef: rec.GeometryRef,
			Metadata:    rec.Metadata,
		}
		if err := r.codec.Restore(sym, desc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistryDrift, err)
		}

		e := &entry{sym: sym, desc: desc}
		e.status.Store(status)
		if rec.PromotedTo != "" {
			to, err := symbol.Parse(rec.PromotedTo)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRegistryDrift, err)
			}
			e.promotedTo = to
		}
		r.entries[sym] = e
	}
	return r, nil
}
