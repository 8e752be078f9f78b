package commissions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), nil)
	require.NoError(t, err)
	return svc, conn
}

func seedOrder(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, subtotals ...string) (*models.Order, []models.OrderLineItem) {
	t.Helper()
	order := &models.Order{SellerID: sellerID, CurrencyCode: enums.CurrencyUSD}
	require.NoError(t, conn.Create(order).Error)

	items := make([]models.OrderLineItem, 0, len(subtotals))
	for i, subtotal := range subtotals {
		item := models.OrderLineItem{
			OrderID:   order.ID,
			Subtotal:  dec(subtotal),
			TaxTotal:  dec("0"),
			CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, conn.Create(&item).Error)
		items = append(items, item)
	}
	return order, items
}

func globalRuleInput(value string) CreateRuleInput {
	return CreateRuleInput{
		Name:      "marketplace default",
		Reference: enums.CommissionReferenceGlobal,
		Rate: RateInput{
			Type:   enums.CommissionRatePercentage,
			Target: enums.CommissionTargetItem,
			Value:  dec(value),
		},
	}
}

func activeLines(t *testing.T, conn *gorm.DB, orderID uuid.UUID) []models.CommissionLine {
	t.Helper()
	var lines []models.CommissionLine
	require.NoError(t, conn.Where("order_id = ?", orderID).Order("created_at ASC").Find(&lines).Error)
	return lines
}

func TestComputeOrderCommissionsScenario(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)

	_, err := svc.CreateRule(ctx, globalRuleInput("10"))
	require.NoError(t, err)
	order, items := seedOrder(t, conn, uuid.New(), "100.00", "50.00")

	lines, err := svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, items[0].ID, lines[0].ItemLineID)
	assert.True(t, lines[0].Value.Equal(dec("10.00")), "got %s", lines[0].Value)
	assert.True(t, lines[1].Value.Equal(dec("5.00")), "got %s", lines[1].Value)
}

func TestComputeOrderCommissionsReplacesInsteadOfDuplicating(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)

	_, err := svc.CreateRule(ctx, globalRuleInput("10"))
	require.NoError(t, err)
	order, _ := seedOrder(t, conn, uuid.New(), "19.99")

	first, err := svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)
	second, err := svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)

	stored := activeLines(t, conn, order.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, stored[0].Value.Equal(dec("2.00")), "got %s", stored[0].Value)
}

func TestComputeOrderCommissionsSwitchesRule(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)
	sellerID := uuid.New()

	_, err := svc.CreateRule(ctx, globalRuleInput("10"))
	require.NoError(t, err)
	order, _ := seedOrder(t, conn, sellerID, "100.00")
	_, err = svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)

	sellerRule := globalRuleInput("4")
	sellerRule.Reference = enums.CommissionReferenceSeller
	sellerRule.ReferenceID = &sellerID
	created, err := svc.CreateRule(ctx, sellerRule)
	require.NoError(t, err)

	_, err = svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)

	stored := activeLines(t, conn, order.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, created.ID, stored[0].RuleID)
	assert.True(t, stored[0].Value.Equal(dec("4.00")))

	var total int64
	require.NoError(t, conn.Unscoped().Model(&models.CommissionLine{}).Where("order_id = ?", order.ID).Count(&total).Error)
	assert.Equal(t, int64(2), total, "previous line is kept soft deleted")
}

func TestComputeOrderCommissionsShippingAndNoRule(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)

	shippingRule := globalRuleInput("20")
	shippingRule.Rate.Target = enums.CommissionTargetShipping
	_, err := svc.CreateRule(ctx, shippingRule)
	require.NoError(t, err)

	order, _ := seedOrder(t, conn, uuid.New(), "80.00")
	ship := models.OrderShippingLine{OrderID: order.ID, Subtotal: dec("15.00"), TaxTotal: dec("0")}
	require.NoError(t, conn.Create(&ship).Error)

	lines, err := svc.ComputeOrderCommissions(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1, "item line has no applicable rule")
	assert.Equal(t, ship.ID, lines[0].ItemLineID)
	assert.Equal(t, enums.CommissionTargetShipping, lines[0].Target)
	assert.True(t, lines[0].Value.Equal(dec("3.00")))
}

func TestComputeOrderCommissionsUnsupportedCurrencyWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)

	_, err := svc.CreateRule(ctx, globalRuleInput("10"))
	require.NoError(t, err)
	eurPrice := CreateRuleInput{
		Name:      "flat seller fee",
		Reference: enums.CommissionReferenceGlobal,
		Rate: RateInput{
			Type:     enums.CommissionRateFlat,
			Target:   enums.CommissionTargetItem,
			Priority: 5,
			Prices:   []PriceInput{{CurrencyCode: "eur", Amount: dec("1.00")}},
		},
	}
	_, err = svc.CreateRule(ctx, eurPrice)
	require.NoError(t, err)

	order, _ := seedOrder(t, conn, uuid.New(), "10.00", "20.00")
	_, err = svc.ComputeOrderCommissions(ctx, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnsupportedCurrency))
	assert.Empty(t, activeLines(t, conn, order.ID))
}

func TestComputeOrderCommissionsMissingOrder(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ComputeOrderCommissions(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	sellerID := uuid.New()

	cases := map[string]CreateRuleInput{
		"missing name":        {Reference: enums.CommissionReferenceGlobal, Rate: globalRuleInput("1").Rate},
		"bad reference":       {Name: "x", Reference: "store", Rate: globalRuleInput("1").Rate},
		"percentage over 100": globalRuleInput("120"),
		"negative value":      globalRuleInput("-1"),
		"global with reference id": {
			Name: "x", Reference: enums.CommissionReferenceGlobal, ReferenceID: &sellerID, Rate: globalRuleInput("1").Rate,
		},
		"seller without reference id": {Name: "x", Reference: enums.CommissionReferenceSeller, Rate: globalRuleInput("1").Rate},
		"flat without currency": {
			Name: "x", Reference: enums.CommissionReferenceGlobal,
			Rate: RateInput{Type: enums.CommissionRateFlat, Target: enums.CommissionTargetItem, Value: dec("1")},
		},
		"min above max": {
			Name: "x", Reference: enums.CommissionReferenceGlobal,
			Rate: RateInput{
				Type: enums.CommissionRatePercentage, Target: enums.CommissionTargetItem, Value: dec("1"),
				MinAmount: decPtr("5"), MaxAmount: decPtr("1"),
			},
		},
	}
	for name, input := range cases {
		_, err := svc.CreateRule(context.Background(), input)
		if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCreateRuleKeepsDisabledFlag(t *testing.T) {
	svc, conn := newTestService(t)
	input := globalRuleInput("3")
	disabled := false
	input.Rate.IsEnabled = &disabled

	rule, err := svc.CreateRule(context.Background(), input)
	require.NoError(t, err)

	var rate models.CommissionRate
	require.NoError(t, conn.Where("id = ?", rule.RateID).First(&rate).Error)
	assert.False(t, rate.IsEnabled)

	rules, err := NewRepository(conn).ListCandidateRules(context.Background(), enums.CommissionTargetItem)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
