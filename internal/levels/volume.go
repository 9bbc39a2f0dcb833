package levels

func init() { Register(volumeProfileStrategy{}) }

// volumeProfileStrategy 成交量轮廓：把窗口按价格分桶累计成交量，
// 明显高于均值的桶视为高成交区边界。无成交量数据时不产出。
type volumeProfileStrategy struct{}

func (volumeProfileStrategy) ID() string { return "volume_profile" }

const volumeProfileBins = 24

func (volumeProfileStrategy) Compute(in Input) []Level {
	cs := in.Candles
	if len(cs) < volumeProfileBins {
		return nil
	}
	high, low := cs.HighLow()
	if high <= low {
		return nil
	}
	binSize := (high - low) / volumeProfileBins
	bins := make([]float64, volumeProfileBins)
	lastTouch := make([]int, volumeProfileBins)
	total := 0.0
	for i, c := range cs {
		typical := (c.High + c.Low + c.Close) / 3
		idx := int((typical - low) / binSize)
		if idx < 0 {
			idx = 0
		}
		if idx >= volumeProfileBins {
			idx = volumeProfileBins - 1
		}
		bins[idx] += c.Volume
		lastTouch[idx] = i
		total += c.Volume
	}
	if total <= 0 {
		return nil
	}
	avg := total / volumeProfileBins
	var out []Level
	for i, v := range bins {
		if v < avg*1.5 {
			continue
		}
		price := low + (float64(i)+0.5)*binSize
		out = append(out, Level{
			Price: price, Kind: KindVolumeProfile, Support: price < in.Current,
			LastTouch: lastTouch[i],
			Context:   contextForIndex(lastTouch[i], len(cs)),
		})
	}
	return out
}
