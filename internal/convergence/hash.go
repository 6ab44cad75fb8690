package convergence

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
)

//go:embed engine.go
var engineSource []byte

// EngineHash fingerprints the decision logic compiled into this binary.
// Export manifests record it so a bundle replayed by a different engine
// version can be detected.
func EngineHash() string {
	sum := sha256.Sum256(engineSource)
	return hex.EncodeToString(sum[:])[:16]
}
