package transform

import (
	"context"
	"math/rand"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
)

// PriorityTrashClasses runs decoy generation before everything else so later
// passes treat decoys like any other class.
const PriorityTrashClasses = 0

// fieldDescs are the descriptors decoy fields draw from.
var fieldDescs = []string{"I", "J", "Z", "D", "F", "[B", "Ljava/lang/String;", "Ljava/lang/Object;"}

// TrashClasses injects synthetic decoy classes: structurally valid,
// behaviorally inert, present purely to raise the cost of analysis.
type TrashClasses struct {
	count    int
	priority int
	seed     int64
	session  *Session
}

// NewTrashClasses creates the decoy generator the orchestrator auto-inserts
// when the configured count is positive.
func NewTrashClasses(count int, seed int64) *TrashClasses {
	return &TrashClasses{count: count, priority: PriorityTrashClasses, seed: seed}
}

func newTrashClassesFromConfig(model *config.Model, block *config.Transformer) (Transformer, error) {
	count, err := intOption(block.Options, "count", int64(model.TrashClasses))
	if err != nil {
		return nil, err
	}
	seed, err := intOption(block.Options, "seed", 0)
	if err != nil {
		return nil, err
	}
	t := NewTrashClasses(int(count), seed)
	t.priority = priorityOr(block, PriorityTrashClasses)
	return t, nil
}

func (t *TrashClasses) Name() string { return "Trash Classes" }

func (t *TrashClasses) Priority() int { return t.priority }

func (t *TrashClasses) Init(s *Session) { t.session = s }

func (t *TrashClasses) Transform(ctx context.Context) error {
	seed := t.seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < t.count; i++ {
		name := t.freshName(rng)
		b := classfile.NewBuilder(name, "java/lang/Object",
			classfile.AccPublic|classfile.AccSuper|classfile.AccSynthetic)
		for f := 0; f < 1+rng.Intn(4); f++ {
			b.Field(classfile.AccPublic, randomName(rng, 6), fieldDescs[rng.Intn(len(fieldDescs))])
		}
		// One inert method body: bare return.
		b.Method(classfile.AccPublic|classfile.AccStatic, randomName(rng, 6), "()V", 0, 1, []byte{0xb1})
		t.session.AddClass(b.Build())
	}
	ctxlog.FromContext(ctx).Debug("Generated trash classes.", "count", t.count)
	return nil
}

// freshName draws names until one misses the classpath; collisions with
// real classes would shadow them in the output.
func (t *TrashClasses) freshName(rng *rand.Rand) string {
	for {
		name := randomName(rng, 10)
		if t.session.Index.Get(name) == nil {
			return name
		}
	}
}

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomName(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = nameAlphabet[rng.Intn(len(nameAlphabet))]
	}
	return string(b)
}
