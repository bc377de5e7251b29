package domain

import "fmt"

// Feature names a capability a plan may unlock.
type Feature string

const (
	FeatureCompanyBranding Feature = "company_branding"
	FeatureAIScanner       Feature = "ai_scanner"
	FeatureAIChatbot       Feature = "ai_chatbot"
	FeatureAccounting      Feature = "accounting"
	FeatureInventory       Feature = "inventory"
	FeatureTaxCompliance   Feature = "tax_compliance"
	FeaturePayroll         Feature = "payroll"
	FeatureAdvancedReports Feature = "advanced_reports"
	FeaturePrioritySupport Feature = "priority_support"
)

// Features is the capability set attached to a plan.
type Features struct {
	HasCompanyBranding bool `json:"has_company_branding"`
	HasAIScanner       bool `json:"has_ai_scanner"`
	HasAIChatbot       bool `json:"has_ai_chatbot"`
	HasAccounting      bool `json:"has_accounting"`
	HasInventory       bool `json:"has_inventory"`
	HasTaxCompliance   bool `json:"has_tax_compliance"`
	HasPayroll         bool `json:"has_payroll"`
	HasAdvancedReports bool `json:"has_advanced_reports"`
	HasPrioritySupport bool `json:"has_priority_support"`
}

// Flags returns every feature with its enabled state.
func (f Features) Flags() map[Feature]bool {
	return map[Feature]bool{
		FeatureCompanyBranding: f.HasCompanyBranding,
		FeatureAIScanner:       f.HasAIScanner,
		FeatureAIChatbot:       f.HasAIChatbot,
		FeatureAccounting:      f.HasAccounting,
		FeatureInventory:       f.HasInventory,
		FeatureTaxCompliance:   f.HasTaxCompliance,
		FeaturePayroll:         f.HasPayroll,
		FeatureAdvancedReports: f.HasAdvancedReports,
		FeaturePrioritySupport: f.HasPrioritySupport,
	}
}

// Has reports whether feature is enabled. Unknown features are never enabled.
func (f Features) Has(feature Feature) bool {
	return f.Flags()[feature]
}

// FeaturesFor returns the capability set granted by p.
func FeaturesFor(p Plan) Features {
	switch p {
	case PlanFree:
		return Features{}
	case PlanStarter:
		return Features{
			HasCompanyBranding: true,
			HasAccounting:      true,
		}
	case PlanProfessional:
		return Features{
			HasCompanyBranding: true,
			HasAccounting:      true,
			HasInventory:       true,
			HasTaxCompliance:   true,
			HasAdvancedReports: true,
		}
	case PlanPremium:
		return Features{
			HasCompanyBranding: true,
			HasAIScanner:       true,
			HasAIChatbot:       true,
			HasAccounting:      true,
			HasInventory:       true,
			HasTaxCompliance:   true,
			HasPayroll:         true,
			HasAdvancedReports: true,
			HasPrioritySupport: true,
		}
	default:
		panic(fmt.Sprintf("plan: no features for unknown plan value %d", uint8(p)))
	}
}
