package bot

import "context"

// Variant identifies a strategy implementation. The set is closed: config
// selects one of these tags, there is no plugin mechanism.
type Variant string

const (
	VariantScalper Variant = "scalper"
	VariantGrid    Variant = "grid"
)

// Strategy is the surface the polling loops drive. ScanTick runs on the
// slow cadence and makes entry decisions; PositionTick runs on the fast
// cadence and manages open state against current prices. Both are
// best-effort: collaborator failures are logged and the next tick retries.
type Strategy interface {
	Name() string
	ScanTick(ctx context.Context)
	PositionTick(ctx context.Context)
	Shutdown()
}
