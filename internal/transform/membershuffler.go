package transform

import (
	"context"
	"math/rand"
	"sort"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
)

// PriorityMemberShuffler runs after structural passes; declaration order
// carries no semantics, so nothing depends on it either way.
const PriorityMemberShuffler = 40

// MemberShuffler reorders field and method declarations. Decompilers and
// diffing tools lean on declaration order; the JVM does not.
type MemberShuffler struct {
	priority int
	seed     int64
	session  *Session
}

// NewMemberShuffler creates a shuffler. A zero seed picks one at random.
func NewMemberShuffler(seed int64) *MemberShuffler {
	return &MemberShuffler{priority: PriorityMemberShuffler, seed: seed}
}

func newMemberShufflerFromConfig(_ *config.Model, block *config.Transformer) (Transformer, error) {
	seed, err := intOption(block.Options, "seed", 0)
	if err != nil {
		return nil, err
	}
	t := NewMemberShuffler(seed)
	t.priority = priorityOr(block, PriorityMemberShuffler)
	return t, nil
}

func (t *MemberShuffler) Name() string { return "Member Shuffler" }

func (t *MemberShuffler) Priority() int { return t.priority }

func (t *MemberShuffler) Init(s *Session) { t.session = s }

func (t *MemberShuffler) Transform(ctx context.Context) error {
	seed := t.seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	// Deterministic class order so a fixed seed shuffles reproducibly.
	names := make([]string, 0, len(t.session.Classes))
	for name := range t.session.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	shuffled := 0
	for _, name := range names {
		c := t.session.Classes[name]
		shuffle(rng, c.Fields)
		shuffle(rng, c.Methods)
		shuffled++
	}
	ctxlog.FromContext(ctx).Debug("Shuffled member order.", "classes", shuffled)
	return nil
}

func shuffle(rng *rand.Rand, members []*classfile.Member) {
	rng.Shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
}
