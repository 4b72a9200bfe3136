// Package cashevents implements the Cash-Event Scheduler (spec §4.7):
// quarterly dividends, semi-annual bond coupons, bond maturities,
// continuously-accrued index expense ratios, monthly loan interest and
// flat account fees, and margin interest — each catching up any missed
// boundaries on every call, bounded by a per-category safety cap so a
// long unattended time-skip cannot spend unbounded work on one tick.
package cashevents

import (
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/money"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// catchUpCap bounds how many missed period boundaries one Process call
// will replay for a single category (spec §4.7's "bounded per tick by a
// safety cap, e.g., 40 quarters", generalized to every category here:
// all of them share the same "retain the remainder for subsequent
// ticks" idempotent catch-up shape).
const catchUpCap = 40

// DividendWithholdingRate is the flat dividend-tax rate (spec §6).
const DividendWithholdingRate = 0.15

func quarterIndex(t time.Time) int {
	return (t.Year()-1970)*4 + (int(t.Month())-1)/3
}

func quarterStart(q int) time.Time {
	year := 1970 + q/4
	month := time.Month((q%4)*3 + 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func semiannualIndex(t time.Time) int {
	return (t.Year()-1970)*2 + (int(t.Month())-1)/6
}

func monthIndex(t time.Time) int {
	return (t.Year()-1970)*12 + int(t.Month()) - 1
}

// Process runs every cash-event category up to asOf, mutating acct and
// es in place. Ordering within a category-pass follows spec §4.7:
// dividends, then coupons/maturities, then expense ratios, then fees,
// then interest.
func Process(cat *refdata.Catalog, pe *priceengine.Engine, es *account.EngineState, acct *account.Account, asOf time.Time) {
	processDividends(cat, pe, es, acct, asOf)
	processCoupons(cat, es, acct, asOf)
	processMaturities(cat, acct, asOf)
	processIndexExpense(cat, pe, es, acct, asOf)
	processMonthlyFees(es, acct, asOf)
	processLoanInterest(cat, es, acct, asOf)
	processMarginInterest(es, acct, asOf)
}

// processDividends pays quarterly dividends on every held dividend-paying
// symbol, withholding tax, bounded by catchUpCap quarters per call (spec
// scenario #6).
func processDividends(cat *refdata.Catalog, pe *priceengine.Engine, es *account.EngineState, acct *account.Account, asOf time.Time) {
	target := quarterIndex(asOf)
	start := es.LastDividendQuarter + 1
	end := target
	if end-start+1 > catchUpCap {
		end = start + catchUpCap - 1
	}
	for q := start; q <= end; q++ {
		boundary := quarterStart(q)
		if boundary.After(asOf) {
			break
		}
		for symbol, qty := range acct.Portfolio {
			if qty <= 0 {
				continue
			}
			rate, ok := cat.DividendRateFor(symbol, boundary.Year())
			if !ok || rate <= 0 {
				continue
			}
			quote, err := pe.Price(symbol, boundary)
			if err != nil {
				continue
			}
			positionValue := qty * quote.Price
			gross := money.FromFloat(rate * positionValue / 4)
			tax := gross.Mul(DividendWithholdingRate)
			net := gross.Sub(tax)
			acct.Cash += net
			acct.Transactions = append(acct.Transactions, account.Transaction{
				Kind: account.TxDividend, Symbol: symbol, Qty: qty, Price: quote.Price,
				CashDelta: net, Instant: boundary, Note: "quarterly dividend, 15% withheld",
			})
			acct.Transactions = append(acct.Transactions, account.Transaction{
				Kind: account.TxTax, Symbol: symbol, CashDelta: tax.Neg(), Instant: boundary, Note: "dividend withholding",
			})
		}
		es.LastDividendQuarter = q
	}
}

// processCoupons pays semi-annual bond coupons on every bond holding
// whose coupon period has elapsed.
func processCoupons(cat *refdata.Catalog, es *account.EngineState, acct *account.Account, asOf time.Time) {
	target := semiannualIndex(asOf)
	start := es.LastCouponPeriod + 1
	end := target
	if end-start+1 > catchUpCap {
		end = start + catchUpCap - 1
	}
	if end < start {
		return
	}
	for symbol, holdings := range acct.BondHoldings {
		bond, ok := cat.Bonds[symbol]
		if !ok {
			continue
		}
		for i := range holdings {
			h := &holdings[i]
			coupon := money.FromFloat(h.Face * bond.CouponRate / 2)
			periods := end - start + 1
			if periods <= 0 {
				continue
			}
			total := coupon.Mul(float64(periods))
			acct.Cash += total
			h.LastCouponAt = asOf
			acct.Transactions = append(acct.Transactions, account.Transaction{
				Kind: account.TxCoupon, Symbol: symbol, CashDelta: total,
				Instant: asOf, Note: "semi-annual bond coupon",
			})
		}
	}
	es.LastCouponPeriod = end
}

// processMaturities refunds face value and removes bond holdings whose
// maturity date has arrived.
func processMaturities(cat *refdata.Catalog, acct *account.Account, asOf time.Time) {
	for symbol, holdings := range acct.BondHoldings {
		bond, ok := cat.Bonds[symbol]
		if !ok {
			continue
		}
		if asOf.Before(bond.MaturityDate) {
			continue
		}
		var faceTotal float64
		for _, h := range holdings {
			faceTotal += h.Face
		}
		if faceTotal == 0 {
			continue
		}
		refund := money.FromFloat(faceTotal)
		acct.Cash += refund
		delete(acct.BondHoldings, symbol)
		acct.Transactions = append(acct.Transactions, account.Transaction{
			Kind: account.TxBondMaturity, Symbol: symbol, CashDelta: refund, Instant: asOf, Note: "bond matured",
		})
	}
}

// processIndexExpense debits each index-fund holding's expense ratio,
// accrued daily since the last processed instant.
func processIndexExpense(cat *refdata.Catalog, pe *priceengine.Engine, es *account.EngineState, acct *account.Account, asOf time.Time) {
	if es.LastIndexExpenseInstant.IsZero() {
		es.LastIndexExpenseInstant = asOf
		return
	}
	days := int(asOf.Sub(es.LastIndexExpenseInstant).Hours() / 24)
	if days <= 0 {
		return
	}
	capped := days > catchUpCap*90
	if capped { // generous cap: ~10 years of daily accrual
		days = catchUpCap * 90
	}
	for symbol, holding := range acct.IndexHoldings {
		fund, ok := cat.Indices[symbol]
		if !ok || fund.ExpenseRatio <= 0 {
			continue
		}
		quote, err := pe.Price(symbol, asOf)
		if err != nil {
			continue
		}
		value := holding.Units * quote.Price
		dailyRate := fund.ExpenseRatio / 365
		debit := money.FromFloat(value * dailyRate * float64(days))
		if debit <= 0 {
			continue
		}
		acct.Cash -= debit
		acct.Transactions = append(acct.Transactions, account.Transaction{
			Kind: account.TxIndexExpense, Symbol: symbol, CashDelta: debit.Neg(), Instant: asOf, Note: "index expense ratio accrual",
		})
	}
	if capped {
		es.LastIndexExpenseInstant = es.LastIndexExpenseInstant.AddDate(0, 0, days)
	} else {
		es.LastIndexExpenseInstant = asOf
	}
}

// FlatMonthlyFee is the account's flat monthly service fee.
const FlatMonthlyFee = 5.00

// processMonthlyFees debits the flat monthly account fee for each
// elapsed month, bounded by catchUpCap.
func processMonthlyFees(es *account.EngineState, acct *account.Account, asOf time.Time) {
	target := monthIndex(asOf)
	startMonth := monthIndex(es.LastMonthlyFeeInstant)
	if es.LastMonthlyFeeInstant.IsZero() {
		es.LastMonthlyFeeInstant = asOf
		return
	}
	count := target - startMonth
	if count <= 0 {
		return
	}
	capped := count > catchUpCap
	if capped {
		count = catchUpCap
	}
	fee := money.FromFloat(FlatMonthlyFee).Mul(float64(count))
	acct.Cash -= fee
	acct.Transactions = append(acct.Transactions, account.Transaction{
		Kind: account.TxFee, CashDelta: fee.Neg(), Instant: asOf, Note: "flat monthly account fee",
	})
	if capped {
		es.LastMonthlyFeeInstant = time.Date(1970, time.Month(startMonth+count+1), 1, 0, 0, 0, 0, time.UTC)
	} else {
		es.LastMonthlyFeeInstant = asOf
	}
}

// processLoanInterest accrues monthly interest on every outstanding
// loan, escalating missed payments via the lender's penalty rate and a
// credit-score deduction when a payment is missed outright (spec §4.7,
// §7's "Loans past their cure window auto-escalate").
func processLoanInterest(cat *refdata.Catalog, es *account.EngineState, acct *account.Account, asOf time.Time) {
	target := monthIndex(asOf)
	start := es.LastLoanInterestMonth + 1
	end := target
	if end-start+1 > catchUpCap {
		end = start + catchUpCap - 1
	}
	periods := end - start + 1
	if periods <= 0 {
		return
	}
	for _, loan := range acct.Loans {
		if loan.Balance <= 0 {
			continue
		}
		monthlyRate := loan.RateAnnual / 12
		interest := loan.Balance.Mul(monthlyRate * float64(periods))
		loan.Balance += interest
		loan.LastInterestAt = asOf

		if acct.Cash < interest {
			loan.MissedPayments++
			var lender refdata.LoanLender
			for _, l := range cat.Lenders {
				if l.ID == loan.LenderID {
					lender = l
					break
				}
			}
			penalty := loan.Balance.Mul(lender.PenaltyRatePct)
			loan.Balance += penalty
			acct.CreditScore -= 10
			acct.Transactions = append(acct.Transactions, account.Transaction{
				Kind: account.TxLoanPenalty, CashDelta: money.Zero, Instant: asOf, Note: "missed loan payment penalty",
			})
		} else {
			acct.Cash -= interest
			acct.Transactions = append(acct.Transactions, account.Transaction{
				Kind: account.TxLoanInterest, CashDelta: interest.Neg(), Instant: asOf, Note: "monthly loan interest",
			})
		}
	}
	es.LastLoanInterestMonth = end
}

// processMarginInterest accrues monthly interest on any outstanding
// margin balance.
func processMarginInterest(es *account.EngineState, acct *account.Account, asOf time.Time) {
	if acct.MarginState.BorrowedCash <= 0 {
		es.LastMarginMonth = monthIndex(asOf)
		return
	}
	target := monthIndex(asOf)
	start := es.LastMarginMonth + 1
	end := target
	if end-start+1 > catchUpCap {
		end = start + catchUpCap - 1
	}
	periods := end - start + 1
	if periods <= 0 {
		return
	}
	const marginRateAnnual = 0.08
	interest := acct.MarginState.BorrowedCash.Mul((marginRateAnnual / 12) * float64(periods))
	acct.Cash -= interest
	acct.MarginState.BorrowedCash += interest
	acct.MarginState.LastAccrual = asOf
	acct.Transactions = append(acct.Transactions, account.Transaction{
		Kind: account.TxMarginInterest, CashDelta: interest.Neg(), Instant: asOf, Note: "monthly margin interest",
	})
	es.LastMarginMonth = end
}
