package pairs

import "strings"

// Spec 描述一个可交易品种的静态参数：pip 大小、每手 pip 价值、
// 止损距离边界以及新闻关键词。
type Spec struct {
	Symbol          string
	PipSize         float64 // 一个 pip 对应的报价增量
	PipValuePerLot  float64 // 每标准手每 pip 的账户货币价值（USD）
	LotStep         float64
	MinLot          float64
	MaxLot          float64
	MinStopPips     float64
	MaxStopPips     float64
	DefaultStopPips float64
	DefaultTakePips float64
	Volatility      string
	Keywords        []string
}

const (
	defaultPipValuePerLot = 10.0
	defaultMinStopPips    = 15
	defaultMaxStopPips    = 100

	DefaultLotStep = 0.01
	DefaultMinLot  = 0.01
	DefaultMaxLot  = 10.0
)

// 内置主流品种表。未列出的品种走 genericSpec 的通用规则。
var builtin = map[string]Spec{
	"EURUSD": {
		Symbol: "EURUSD", PipSize: 0.0001, PipValuePerLot: 10.0,
		MinStopPips: 10, MaxStopPips: 100, DefaultStopPips: 30, DefaultTakePips: 60,
		Volatility: "medium",
		Keywords:   []string{"EUR", "USD", "euro", "dollar", "ECB", "Fed", "Federal Reserve"},
	},
	"GBPUSD": {
		Symbol: "GBPUSD", PipSize: 0.0001, PipValuePerLot: 10.0,
		MinStopPips: 15, MaxStopPips: 120, DefaultStopPips: 40, DefaultTakePips: 80,
		Volatility: "high",
		Keywords:   []string{"GBP", "pound", "sterling", "BOE", "Bank of England"},
	},
	"USDJPY": {
		Symbol: "USDJPY", PipSize: 0.01, PipValuePerLot: 9.1,
		MinStopPips: 10, MaxStopPips: 100, DefaultStopPips: 35, DefaultTakePips: 70,
		Volatility: "medium",
		Keywords:   []string{"JPY", "yen", "BOJ", "Bank of Japan", "Japan"},
	},
	"XAUUSD": {
		Symbol: "XAUUSD", PipSize: 0.01, PipValuePerLot: 1.0,
		MinStopPips: 50, MaxStopPips: 300, DefaultStopPips: 100, DefaultTakePips: 200,
		Volatility: "high",
		Keywords:   []string{"gold", "XAU", "precious metal", "safe haven", "inflation"},
	},
	"AUDUSD": {
		Symbol: "AUDUSD", PipSize: 0.0001, PipValuePerLot: 10.0,
		MinStopPips: 12, MaxStopPips: 100, DefaultStopPips: 30, DefaultTakePips: 60,
		Volatility: "medium",
		Keywords:   []string{"AUD", "aussie", "RBA", "Reserve Bank of Australia", "Australia"},
	},
	"NZDUSD": {
		Symbol: "NZDUSD", PipSize: 0.0001, PipValuePerLot: 10.0,
		MinStopPips: 15, MaxStopPips: 100, DefaultStopPips: 30, DefaultTakePips: 60,
		Volatility: "medium",
		Keywords:   []string{"NZD", "kiwi", "RBNZ", "New Zealand"},
	},
	"USDCHF": {
		Symbol: "USDCHF", PipSize: 0.0001, PipValuePerLot: 10.0,
		MinStopPips: 15, MaxStopPips: 100, DefaultStopPips: 30, DefaultTakePips: 60,
		Volatility: "low",
		Keywords:   []string{"CHF", "franc", "SNB", "Swiss National Bank", "Switzerland"},
	},
	"USDCAD": {
		Symbol: "USDCAD", PipSize: 0.0001, PipValuePerLot: 7.5,
		MinStopPips: 15, MaxStopPips: 100, DefaultStopPips: 30, DefaultTakePips: 60,
		Volatility: "medium",
		Keywords:   []string{"CAD", "loonie", "BOC", "Bank of Canada", "Canada", "oil"},
	},
}

// DefaultSymbols 是未配置品种列表时的兜底。
var DefaultSymbols = []string{"EURUSD", "XAUUSD", "GBPUSD", "USDJPY"}

// Normalize 统一品种写法：大写、去空白、去分隔符（EUR/USD -> EURUSD）。
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// Lookup 返回品种参数。未知品种按通用规则生成，second 返回值标记是否内置。
func Lookup(symbol string) (Spec, bool) {
	sym := Normalize(symbol)
	if spec, ok := builtin[sym]; ok {
		return withLotBounds(spec), true
	}
	return withLotBounds(genericSpec(sym)), false
}

// Known 返回内置品种列表，顺序稳定。
func Known() []string {
	out := make([]string, 0, len(builtin))
	for _, sym := range []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "AUDUSD", "NZDUSD", "USDCHF", "USDCAD"} {
		if _, ok := builtin[sym]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// PipSizeFor 对未知品种给出 pip 大小：JPY 报价 0.01，其余 0.0001。
func PipSizeFor(symbol string) float64 {
	sym := Normalize(symbol)
	if spec, ok := builtin[sym]; ok {
		return spec.PipSize
	}
	if strings.HasSuffix(sym, "JPY") {
		return 0.01
	}
	return 0.0001
}

func genericSpec(sym string) Spec {
	spec := Spec{
		Symbol:          sym,
		PipSize:         0.0001,
		PipValuePerLot:  defaultPipValuePerLot,
		MinStopPips:     defaultMinStopPips,
		MaxStopPips:     defaultMaxStopPips,
		DefaultStopPips: 30,
		DefaultTakePips: 60,
		Volatility:      "medium",
	}
	if strings.HasSuffix(sym, "JPY") {
		spec.PipSize = 0.01
	}
	if len(sym) == 6 {
		base, quote := sym[:3], sym[3:]
		spec.Keywords = []string{base, quote}
	}
	return spec
}

func withLotBounds(spec Spec) Spec {
	if spec.LotStep == 0 {
		spec.LotStep = DefaultLotStep
	}
	if spec.MinLot == 0 {
		spec.MinLot = DefaultMinLot
	}
	if spec.MaxLot == 0 {
		spec.MaxLot = DefaultMaxLot
	}
	return spec
}

// PipsBetween 把价差换算成 pip 数。
func (s Spec) PipsBetween(a, b float64) float64 {
	if s.PipSize == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / s.PipSize
}

// PriceOffset 把 pip 数换算回价差。
func (s Spec) PriceOffset(pips float64) float64 {
	return pips * s.PipSize
}
