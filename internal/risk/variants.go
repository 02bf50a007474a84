package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// Risk manager tags
const (
	TypeBase         = "base"
	TypeConservative = "conservative"
	TypeAggressive   = "aggressive"
)

// Overlay caps, evaluated only after the base limits pass
var (
	conservativeCap = ratioCap{name: TypeConservative, single: 0.15, total: 0.60}
	aggressiveCap   = ratioCap{name: TypeAggressive, single: 0.40, total: 0.90}
)

// ConservativeManager additionally caps a name at 15% and the book at 60%
type ConservativeManager struct {
	*BaseManager
}

// Name implements Manager
func (m *ConservativeManager) Name() string { return TypeConservative }

// CheckPositionLimits implements Manager (base AND overlay)
func (m *ConservativeManager) CheckPositionLimits(ctx context.Context, symbol string, planned float64) bool {
	return m.checkLimits(ctx, symbol, planned, conservativeCap)
}

// AggressiveManager additionally caps a name at 40% and the book at 90%
type AggressiveManager struct {
	*BaseManager
}

// Name implements Manager
func (m *AggressiveManager) Name() string { return TypeAggressive }

// CheckPositionLimits implements Manager (base AND overlay)
func (m *AggressiveManager) CheckPositionLimits(ctx context.Context, symbol string, planned float64) bool {
	return m.checkLimits(ctx, symbol, planned, aggressiveCap)
}

// New builds the risk manager named by kind
// ⭐ SSOT: 리스크 매니저 선택은 여기서만
func New(kind string, config Config, account contracts.AccountProvider, clock contracts.Clock, log *logger.Logger) (Manager, error) {
	base := NewBaseManager(config, account, clock, log)

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TypeBase, "":
		return base, nil
	case TypeConservative:
		return &ConservativeManager{BaseManager: base}, nil
	case TypeAggressive:
		return &AggressiveManager{BaseManager: base}, nil
	default:
		return nil, fmt.Errorf("unknown risk type %q", kind)
	}
}
