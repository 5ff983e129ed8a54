package contracts

type InputFlags struct {
	Direction   string
	Input       string
	Output      string
	PlanFile    string
	Compression string
	ColorHint   string
	PDFBackend  string
	Rasterizer  string
	HistoryDB   string
	Quality     float64
	DPI         int
	TargetDPI   int
	MaxSize     int64
	Workers     int
	Verbose     bool
}
