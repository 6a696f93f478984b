package diskmap

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/matrix"
	"github.com/hupe1980/diskmap/internal/nodecache"
	"github.com/hupe1980/diskmap/internal/skiplist"
	"github.com/hupe1980/diskmap/internal/store"
	"github.com/hupe1980/diskmap/keys"
)

// Header is the fixed-size root descriptor of one index.
type Header = layout.Header

// Strategy is the structure an index is built on.
type Strategy = layout.Strategy

const (
	StrategySkipList   = layout.StrategySkipList
	StrategyFlatHash   = layout.StrategyFlatHash
	StrategyMatrixHash = layout.StrategyMatrixHash
)

// Ordered is the load factor that selects a skip-list map. Any other value
// up to 19 selects a hash map: below 5 a flat one, otherwise a hash matrix
// with that many dispatch levels.
const Ordered uint8 = 0xFF

// StrategyFor returns the strategy a map with loadFactor is built on.
func StrategyFor(loadFactor uint8) (Strategy, error) {
	if loadFactor == Ordered {
		return StrategySkipList, nil
	}
	s, err := matrix.StrategyFor(loadFactor)
	return s, translateError(err)
}

const codecKeyPrefix = "codec/"

// catalog owns the three bootstrap indexes: name→header, id→header and the
// internal index that persists codec ids. Catalog entries point their
// record reference straight at the header they name.
type catalog struct {
	nodes *nodecache.Cached

	mu       sync.RWMutex
	byName   *skiplist.List
	byID     *skiplist.List
	internal *skiplist.List

	codecIDs   *xsync.MapOf[string, uint16]
	codecNames *xsync.MapOf[uint16, string]
}

func openCatalog(nodes *nodecache.Cached) (*catalog, error) {
	c := &catalog{
		nodes:      nodes,
		codecIDs:   xsync.NewMapOf[string, uint16](),
		codecNames: xsync.NewMapOf[uint16, string](),
	}

	lists := make([]*skiplist.List, 0, 3)
	for _, root := range []uint64{layout.ByNameRoot, layout.ByIDRoot, layout.InternalRoot} {
		var h Header
		if _, err := nodes.Store().ReadObject(root, layout.HeaderSize, &h); err != nil {
			return nil, err
		}
		if h.IsZero() {
			h = Header{Position: root, Strategy: StrategySkipList, MaxLevel: skiplist.DefaultMaxLevel}
			if err := nodes.Store().WriteObject(root, h); err != nil {
				return nil, err
			}
		}
		if h.Position != root || h.Strategy != StrategySkipList {
			return nil, fmt.Errorf("%w: bootstrap root at %d", ErrInvalidHeader, root)
		}
		lists = append(lists, skiplist.New(nodes, root+layout.HeaderFirstNodeOffset, int(h.MaxLevel)))
	}
	c.byName, c.byID, c.internal = lists[0], lists[1], lists[2]

	if err := c.loadCodecs(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *catalog) loadCodecs() error {
	cur, err := c.internal.Seek([]byte(codecKeyPrefix))
	if err != nil {
		return err
	}
	for {
		n, err := cur.Next()
		if err != nil {
			return err
		}
		if n == nil {
			return nil
		}
		name, ok := strings.CutPrefix(string(n.Key), codecKeyPrefix)
		if !ok {
			return nil
		}
		c.codecIDs.Store(name, uint16(n.RecordPosition))
		c.codecNames.Store(uint16(n.RecordPosition), name)
	}
}

// lookup returns the header position registered under key.
func (c *catalog) lookup(l *skiplist.List, key []byte) (uint64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, err := l.Find(key)
	if err != nil || n == nil {
		return 0, false, err
	}
	return n.RecordPosition, true, nil
}

// register points key at the header at pos.
func (c *catalog) register(l *skiplist.List, key []byte, pos uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed, err := l.Upsert(key, skiplist.Ref{Position: pos, Size: layout.HeaderSize})
	if err != nil {
		return err
	}
	if !existed {
		_, err = c.nodes.AddUint64(l.Root()-layout.HeaderFirstNodeOffset+layout.HeaderCountOffset, 1)
	}
	return err
}

// names lists the registered map names in order.
func (c *catalog) names() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur, err := c.byName.Cursor()
	if err != nil {
		return nil, err
	}
	var out []string
	for {
		n, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return out, nil
		}
		out = append(out, string(n.Key))
	}
}

// codecID returns the persisted id of the named codec, assigning the next
// free id on first use.
func (c *catalog) codecID(name string) (uint16, error) {
	if id, ok := c.codecIDs.Load(name); ok {
		return id, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.codecIDs.Load(name); ok {
		return id, nil
	}

	next, err := c.nodes.AddUint64(layout.InternalRoot+layout.HeaderCountOffset, 1)
	if err != nil {
		return 0, err
	}
	if next > 0xFFFF {
		return 0, errors.New("diskmap: codec id space exhausted")
	}

	id := uint16(next)
	if _, _, err := c.internal.Upsert([]byte(codecKeyPrefix+name), skiplist.Ref{Position: next}); err != nil {
		return 0, err
	}
	c.codecIDs.Store(name, id)
	c.codecNames.Store(id, name)
	return id, nil
}

// codecName resolves a persisted codec id.
func (c *catalog) codecName(id uint16) (string, bool) {
	return c.codecNames.Load(id)
}

// count returns the number of named maps.
func (c *catalog) count() (uint64, error) {
	return c.nodes.Uint64(layout.ByNameRoot + layout.HeaderCountOffset)
}

// readHeader loads and checks the header at pos.
func readHeader(nodes *nodecache.Cached, pos uint64) (Header, error) {
	var h Header
	if pos < store.BootstrapSize || pos%store.Alignment != 0 {
		return h, fmt.Errorf("%w: position %d", ErrInvalidHeader, pos)
	}
	ok, err := nodes.Store().ReadObject(pos, layout.HeaderSize, &h)
	if err != nil {
		return h, err
	}
	if !ok || h.Position != pos {
		return h, fmt.Errorf("%w: position %d", ErrInvalidHeader, pos)
	}
	switch h.Strategy {
	case StrategySkipList, StrategyFlatHash, StrategyMatrixHash:
	default:
		return h, fmt.Errorf("%w: position %d has strategy %d", ErrInvalidHeader, pos, h.Strategy)
	}
	return h, nil
}

// createHeader allocates and initializes a new index header.
func createHeader(nodes *nodecache.Cached, loadFactor uint8, kind keys.Kind) (Header, error) {
	strategy, err := StrategyFor(loadFactor)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		Strategy: strategy,
		KeyKind:  uint8(kind),
	}
	if strategy != StrategySkipList {
		h.LoadFactor = loadFactor
	}
	h.MaxLevel = uint8(skiplist.MaxLevelFor(strategy, h.LoadFactor))

	pos, err := nodes.Allocate(layout.HeaderSize)
	if err != nil {
		return Header{}, err
	}
	h.Position = pos

	if strategy != StrategySkipList {
		if h.FirstNode, err = matrix.Create(nodes, strategy, loadFactor); err != nil {
			nodes.Deallocate(pos, layout.HeaderSize)
			return Header{}, err
		}
	}
	if err := nodes.Store().WriteObject(pos, h); err != nil {
		return Header{}, err
	}
	return h, nil
}

// checkHeader reports how h differs from a request for loadFactor and kind.
func checkHeader(label string, h Header, loadFactor uint8, kind keys.Kind) error {
	strategy, err := StrategyFor(loadFactor)
	if err != nil {
		return err
	}
	if h.Strategy != strategy {
		return &ErrMismatch{Name: label, Field: "strategy", Stored: h.Strategy.String(), Request: strategy.String()}
	}
	if strategy != StrategySkipList && h.LoadFactor != loadFactor {
		return &ErrMismatch{Name: label, Field: "load factor", Stored: fmt.Sprint(h.LoadFactor), Request: fmt.Sprint(loadFactor)}
	}
	stored := keys.Kind(h.KeyKind)
	if stored != keys.KindUnknown && kind != keys.KindUnknown && stored != kind {
		return &ErrMismatch{Name: label, Field: "key kind", Stored: stored.String(), Request: kind.String()}
	}
	return nil
}
