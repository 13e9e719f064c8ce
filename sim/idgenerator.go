package sim

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var idGenMutex sync.Mutex
var idGenInstantiated bool
var idGen IDGenerator

// IDGenerator generates the IDs attached to scheduled actions.
type IDGenerator interface {
	Generate() string
}

// UseSequentialIDGenerator makes action IDs sequential and deterministic.
// It must be called before any ID is generated.
func UseSequentialIDGenerator() {
	idGenMutex.Lock()
	defer idGenMutex.Unlock()

	if idGenInstantiated {
		log.Panic("cannot change id generator type after using it")
	}

	idGen = &sequentialIDGenerator{}
	idGenInstantiated = true
}

// UseParallelIDGenerator makes ID generation safe for heavy concurrent use.
// The generated IDs are not deterministic anymore.
func UseParallelIDGenerator() {
	idGenMutex.Lock()
	defer idGenMutex.Unlock()

	if idGenInstantiated {
		log.Panic("cannot change id generator type after using it")
	}

	idGen = parallelIDGenerator{}
	idGenInstantiated = true
}

// GetIDGenerator returns the ID generator in use, defaulting to the
// sequential one.
func GetIDGenerator() IDGenerator {
	idGenMutex.Lock()
	defer idGenMutex.Unlock()

	if !idGenInstantiated {
		idGen = &sequentialIDGenerator{}
		idGenInstantiated = true
	}

	return idGen
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)

	return strconv.FormatUint(idNumber, 10)
}

type parallelIDGenerator struct{}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
