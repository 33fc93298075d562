package insights

import (
	"fmt"
	"strings"

	"github.com/vinodismyname/mcpfunnel/config"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
)

// desktopDevice is the baseline every other device segment is compared with.
const desktopDevice = "Desktop"

// Thresholds tune the rule-based recommendations.
type Thresholds struct {
	// OnboardingRatio triggers onboarding actions when new-user conversion
	// falls below OnboardingRatio × existing-user conversion.
	OnboardingRatio float64 `json:"onboarding_ratio" yaml:"onboarding_ratio" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{OnboardingRatio: config.DefaultOnboardingRatio}
}

// Generate derives the key findings of an analysis run. A nil result yields nil.
func Generate(r *funnel.Result) []string {
	if r == nil {
		return nil
	}
	var out []string
	out = append(out, fmt.Sprintf("Overall funnel conversion rate: %s%% from Home to Confirmation", funnel.FormatRate(r.Overall.ConversionRate)))

	worst := r.Overall.DropOff.Max()
	out = append(out, fmt.Sprintf("Biggest drop-off point: %s with %s%% users lost", worst.Transition, funnel.FormatRate(worst.Percentage)))

	if devices, ok := r.Segment(funnel.SegmentDevice); ok && len(devices) > 0 {
		best, low := extremes(devices)
		out = append(out, fmt.Sprintf("Device comparison: %s performs best with %s%% conversion rate, while %s has %s%%",
			best, funnel.FormatRate(devices[best].OverallConversion), low, funnel.FormatRate(devices[low].OverallConversion)))
	}

	if genders, ok := r.Segment(funnel.SegmentGender); ok {
		for _, g := range genders.Keys() {
			out = append(out, fmt.Sprintf("%s users have a %s%% overall conversion rate", g, funnel.FormatRate(genders[g].OverallConversion)))
		}
	}

	out = append(out, fmt.Sprintf("New users convert at %s%% compared to %s%% for existing users",
		funnel.FormatRate(r.UserType.New.OverallConversion), funnel.FormatRate(r.UserType.Existing.OverallConversion)))

	if r.UserType.New.Count > 0 {
		stuck := r.UserType.New.Funnel.MaxDropOff()
		out = append(out, fmt.Sprintf("New users struggle most at the %s stage with a %s%% drop-off rate", stuck.Stage, funnel.FormatRate(stuck.DropOffRate)))
	}
	return out
}

var bottleneckActions = map[string][]string{
	funnel.TransitionName(funnel.Home): {
		"Improve search visibility: Make the search bar more prominent on the home page",
		"Add featured products on the home page to encourage exploration",
		"Implement personalized product recommendations on the home page based on user behavior",
	},
	funnel.TransitionName(funnel.Search): {
		"Enhance product listings with better images, descriptions, and social proof",
		"Implement filters to help users find relevant products faster",
		"Show limited-time offers to create urgency",
	},
	funnel.TransitionName(funnel.Payment): {
		"Simplify the checkout process with fewer form fields",
		"Add multiple payment options to accommodate user preferences",
		"Implement guest checkout to reduce friction for new users",
	},
}

var (
	onboardingActions = []string{
		"Create a first-time user discount to incentivize completion of first purchase",
		"Add a guided tutorial for new users explaining the shopping process",
		"Implement live chat support to assist new users with questions",
	}
	mobileActions = []string{
		"Optimize the mobile experience with a responsive design",
		"Simplify the mobile checkout process",
		"Implement mobile-specific features like saved payment details",
	}
	generalActions = []string{
		"Implement A/B testing to continuously optimize the conversion funnel",
		"Set up email retargeting campaigns for users who abandon the funnel",
		"Collect user feedback at drop-off points to understand specific issues",
	}
)

// Recommend applies the threshold rules to r. Every rule contributes its block
// independently and in a fixed order.
func Recommend(r *funnel.Result, th Thresholds) []string {
	if r == nil {
		return nil
	}
	var out []string
	out = append(out, bottleneckActions[r.Overall.DropOff.Max().Transition]...)

	if r.UserType.New.OverallConversion < r.UserType.Existing.OverallConversion*th.OnboardingRatio {
		out = append(out, onboardingActions...)
	}

	if devices, ok := r.Segment(funnel.SegmentDevice); ok && underperformsDesktop(devices) {
		out = append(out, mobileActions...)
	}

	return append(out, generalActions...)
}

// underperformsDesktop reports whether any non-Desktop segment converts below
// Desktop. Device names match case-insensitively; without a Desktop segment
// the baseline is 100.
func underperformsDesktop(devices funnel.Segments) bool {
	baseline := 100.0
	for _, name := range devices.Keys() {
		if strings.EqualFold(name, desktopDevice) {
			baseline = devices[name].OverallConversion
			break
		}
	}
	for name, s := range devices {
		if !strings.EqualFold(name, desktopDevice) && s.OverallConversion < baseline {
			return true
		}
	}
	return false
}

// extremes returns the best and worst converting segments. Ties resolve to
// the lexically first key.
func extremes(s funnel.Segments) (best, worst string) {
	for i, k := range s.Keys() {
		v := s[k].OverallConversion
		if i == 0 {
			best, worst = k, k
			continue
		}
		if v > s[best].OverallConversion {
			best = k
		}
		if v < s[worst].OverallConversion {
			worst = k
		}
	}
	return best, worst
}
