package converter

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/observability"
)

// SearchResult describes the trial a SearchController committed.
type SearchResult struct {
	// ProfileIndex is the position in the plan of the committed profile.
	ProfileIndex int
	Pages        int
	Size         int64
	MaxSize      int64
	// BudgetMet is false when every profile exceeded the budget and the
	// last one was committed anyway.
	BudgetMet bool
	// TrialSizes holds the output size of each evaluated profile, in order.
	TrialSizes  []int64
	Diagnostics []Diagnostic
}

// SearchController re-encodes a document with each profile of a plan until
// the output fits the byte budget.
type SearchController struct {
	encoder *PageEncoder
	factory contracts.ContainerFactory
	logger  observability.Logger
}

func NewSearchController(encoder *PageEncoder, factory contracts.ContainerFactory, logger observability.Logger) *SearchController {
	return &SearchController{encoder: encoder, factory: factory, logger: observability.OrNop(logger)}
}

// Run tries the plan's profiles in order. Each trial encodes every page into
// its own buffer. The first trial whose size is within the budget is written
// to sink and later profiles are not evaluated. When none fits, the last
// trial is written. A fatal trial aborts the search and nothing is written.
func (c *SearchController) Run(pages []contracts.PageImage, plan contracts.SizeControlPlan, sink io.Writer) (SearchResult, error) {
	if len(pages) == 0 {
		return SearchResult{}, ErrNoPages
	}
	profiles := plan.Profiles()
	res := SearchResult{MaxSize: plan.MaxSize(), Pages: len(pages)}

	for i, profile := range profiles {
		var buf bytes.Buffer
		diags, err := c.encoder.EncodeDocument(pages, profile, c.factory, &buf)
		if err != nil {
			return res, errors.Wrapf(err, "profile %d (%s)", i, profile)
		}
		size := int64(buf.Len())
		res.TrialSizes = append(res.TrialSizes, size)

		fits := size <= plan.MaxSize()
		c.logger.Info("size trial",
			observability.Int("profile", i),
			observability.String("settings", profile.String()),
			observability.Int64("size", size),
			observability.Int64("max_size", plan.MaxSize()),
		)
		if !fits && i < len(profiles)-1 {
			continue
		}
		if !fits {
			c.logger.Warn("no profile met the size budget, keeping the last one",
				observability.Int64("size", size),
				observability.Int64("max_size", plan.MaxSize()),
			)
		}

		res.ProfileIndex, res.Size, res.BudgetMet, res.Diagnostics = i, size, fits, diags
		if _, err := buf.WriteTo(sink); err != nil {
			return res, errors.Wrap(err, "commit output")
		}
		return res, nil
	}
	// NewSizeControlPlan rejects empty plans, so only a zero plan gets here.
	return res, errors.New("size control plan has no profiles")
}
