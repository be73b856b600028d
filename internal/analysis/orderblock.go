package analysis

import "github.com/predeshen/yfinance-trading-signal/internal/domain/models"

// OrderBlockConfig tunes order block detection.
type OrderBlockConfig struct {
	ATRPeriod    int     // trailing window for the local ATR
	StrengthMult float64 // impulse range must exceed mult * ATR
}

// DefaultOrderBlockConfig mirrors the conventional 1.5x ATR(14) impulse
// threshold.
func DefaultOrderBlockConfig() OrderBlockConfig {
	return OrderBlockConfig{ATRPeriod: DefaultATRPeriod, StrengthMult: 1.5}
}

// DetectOrderBlocks finds order blocks: the last opposite-direction
// candle immediately preceding a strong directional move, where strong
// means the impulse candle's range exceeds StrengthMult times the local
// ATR. The zone is the opposing candle's [low, high]. Blocks a later
// move fully trades through, and earlier blocks overlapped by a newer
// same-direction block, are pruned.
func DetectOrderBlocks(candles []models.Candle, cfg OrderBlockConfig) []models.OrderBlock {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = DefaultATRPeriod
	}
	if cfg.StrengthMult <= 0 {
		cfg.StrengthMult = 1.5
	}
	if len(candles) < cfg.ATRPeriod+2 {
		return nil
	}

	atrs := ATRSeries(candles, cfg.ATRPeriod)

	var blocks []models.OrderBlock
	for i := cfg.ATRPeriod; i < len(candles)-1; i++ {
		base, impulse := candles[i], candles[i+1]
		atr := atrs[i]
		if atr <= 0 || impulse.Range() <= cfg.StrengthMult*atr {
			continue
		}

		var block models.OrderBlock
		switch {
		case base.Bearish() && impulse.Bullish() && impulse.Close > base.High:
			block = models.OrderBlock{
				High:        base.High,
				Low:         base.Low,
				Direction:   models.BiasBullish,
				OriginIndex: i,
				Time:        base.OpenTime,
			}
		case base.Bullish() && impulse.Bearish() && impulse.Close < base.Low:
			block = models.OrderBlock{
				High:        base.High,
				Low:         base.Low,
				Direction:   models.BiasBearish,
				OriginIndex: i,
				Time:        base.OpenTime,
			}
		default:
			continue
		}
		if block.High <= block.Low {
			continue
		}
		if invalidated(block, candles) {
			continue
		}
		blocks = pruneOverlaps(blocks, block)
		blocks = append(blocks, block)
	}
	return blocks
}

// invalidated reports whether a later candle fully traded through the
// block and closed beyond its far side.
func invalidated(b models.OrderBlock, candles []models.Candle) bool {
	for j := b.OriginIndex + 2; j < len(candles); j++ {
		c := candles[j]
		if c.Low > b.Low || c.High < b.High {
			continue
		}
		if b.Direction == models.BiasBullish && c.Close < b.Low {
			return true
		}
		if b.Direction == models.BiasBearish && c.Close > b.High {
			return true
		}
	}
	return false
}

// pruneOverlaps drops earlier blocks of the same direction whose zone
// overlaps the incoming one; the newer block supersedes them.
func pruneOverlaps(blocks []models.OrderBlock, incoming models.OrderBlock) []models.OrderBlock {
	kept := blocks[:0]
	for _, b := range blocks {
		overlap := b.Direction == incoming.Direction &&
			b.Low < incoming.High && incoming.Low < b.High
		if !overlap {
			kept = append(kept, b)
		}
	}
	return kept
}

// LastOrderBlock returns the most recent block, ok=false when none
// exist.
func LastOrderBlock(blocks []models.OrderBlock) (models.OrderBlock, bool) {
	if len(blocks) == 0 {
		return models.OrderBlock{}, false
	}
	return blocks[len(blocks)-1], true
}
