package enums

import "fmt"

// CommissionRateType selects how a rate's value is interpreted.
type CommissionRateType string

const (
	CommissionRateFlat       CommissionRateType = "flat"
	CommissionRatePercentage CommissionRateType = "percentage"
)

func (t CommissionRateType) IsValid() bool {
	return t == CommissionRateFlat || t == CommissionRatePercentage
}

func ParseCommissionRateType(value string) (CommissionRateType, error) {
	t := CommissionRateType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid commission rate type %q", value)
	}
	return t, nil
}

// CommissionTarget partitions rates between product lines and shipping lines.
type CommissionTarget string

const (
	CommissionTargetItem     CommissionTarget = "item"
	CommissionTargetShipping CommissionTarget = "shipping"
)

func (t CommissionTarget) IsValid() bool {
	return t == CommissionTargetItem || t == CommissionTargetShipping
}

func ParseCommissionTarget(value string) (CommissionTarget, error) {
	t := CommissionTarget(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid commission target %q", value)
	}
	return t, nil
}

// CommissionReference is the scope a commission rule applies to.
type CommissionReference string

const (
	CommissionReferenceGlobal          CommissionReference = "global"
	CommissionReferenceSeller          CommissionReference = "seller"
	CommissionReferenceProductCategory CommissionReference = "product_category"
	CommissionReferenceProductType     CommissionReference = "product_type"
)

var commissionReferenceSpecificity = map[CommissionReference]int{
	CommissionReferenceGlobal:          0,
	CommissionReferenceSeller:          1,
	CommissionReferenceProductCategory: 2,
	CommissionReferenceProductType:     3,
}

func (r CommissionReference) IsValid() bool {
	_, ok := commissionReferenceSpecificity[r]
	return ok
}

// Specificity ranks scopes; higher values win during rule resolution.
func (r CommissionReference) Specificity() int {
	if rank, ok := commissionReferenceSpecificity[r]; ok {
		return rank
	}
	return -1
}

func ParseCommissionReference(value string) (CommissionReference, error) {
	r := CommissionReference(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid commission reference %q", value)
	}
	return r, nil
}
