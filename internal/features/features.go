// Package features turns a wallet's transaction history into a fixed-schema
// feature vector consumed by the scorecard.
//
// Extraction is a pure function: the same transaction set always produces the
// same vector, regardless of input order. Every schema key is present in every
// vector, even for an empty history. Monetary aggregates are accumulated with
// decimal arithmetic and only converted to float64 when the vector is built.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscore-io/chainscore/internal/wallet"
)

// SchemaVersion identifies the feature schema. Consumers that persist or
// compare vectors should refuse to mix versions.
const SchemaVersion = "v1"

// Vector maps feature names to values. All names in Names() are always set.
type Vector map[string]float64

// daysPerMonth converts day counts to fractional months.
const daysPerMonth = 30.44

// windowed features are computed three times: over the full history and
// restricted to the trailing 6 and 12 months.
var windowedNames = []string{
	"total_transactions",
	"sent_tx_count",
	"received_tx_count",
	"successful_tx_count",
	"failed_tx_count",
	"failed_tx_ratio",
	"max_failed_tx_streak",
	"total_eth_sent",
	"total_eth_received",
	"net_eth_change",
	"largest_tx_value",
	"avg_tx_value",
	"median_tx_value",
	"unique_counterparties",
	"contract_interactions",
	"contract_interaction_ratio",
	"avg_tx_per_month",
}

var lifetimeNames = []string{
	"account_age_days",
	"account_age_months",
	"days_since_last_tx",
	"active_months",
	"monthly_tx_count_mean",
	"monthly_tx_count_std",
	"activity_consistency",
}

// Names returns all feature names in the schema, in stable order.
func Names() []string {
	names := make([]string, 0, len(windowedNames)*3+len(lifetimeNames))
	for _, suffix := range []string{"", "_6m", "_12m"} {
		for _, n := range windowedNames {
			names = append(names, n+suffix)
		}
	}
	names = append(names, lifetimeNames...)
	return names
}

// Extract computes the feature vector for one wallet's history as of now.
// An empty history yields a vector of zeros (days_since_last_tx is -1,
// a sentinel meaning "never active").
func Extract(txs []wallet.Transaction, walletAddr string, now time.Time) Vector {
	addr := strings.ToLower(walletAddr)
	now = now.UTC()

	// Work on a sorted copy so the result does not depend on input order.
	sorted := make([]wallet.Transaction, len(txs))
	copy(sorted, txs)
	wallet.SortTransactions(sorted)

	v := make(Vector, len(windowedNames)*3+len(lifetimeNames))

	ageDays := 0.0
	if len(sorted) > 0 {
		ageDays = now.Sub(sorted[0].Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
	}
	ageMonths := ageDays / daysPerMonth

	windowFeatures(v, sorted, addr, "", math.Max(1, ageMonths))
	windowFeatures(v, since(sorted, now.AddDate(0, -6, 0)), addr, "_6m", 6)
	windowFeatures(v, since(sorted, now.AddDate(0, -12, 0)), addr, "_12m", 12)

	v["account_age_days"] = ageDays
	v["account_age_months"] = ageMonths

	if len(sorted) == 0 {
		v["days_since_last_tx"] = -1
	} else {
		last := now.Sub(sorted[len(sorted)-1].Timestamp).Hours() / 24
		if last < 0 {
			last = 0
		}
		v["days_since_last_tx"] = last
	}

	active, mean, std := monthlyStats(sorted, now)
	v["active_months"] = float64(active)
	v["monthly_tx_count_mean"] = mean
	v["monthly_tx_count_std"] = std
	v["activity_consistency"] = consistency(active, mean, std)

	return v
}

// windowFeatures fills the windowed feature family for txs, suffixing each
// name. months is the window length used for the per-month rate.
func windowFeatures(v Vector, txs []wallet.Transaction, addr, suffix string, months float64) {
	var (
		sent, received, largest decimal.Decimal
		sentN, recvN            int
		failed, contractCalls   int
		maxStreak, streak       int
		values                  []decimal.Decimal
		parties                 = make(map[string]struct{})
	)

	for _, tx := range txs {
		values = append(values, tx.Value)
		if tx.Value.GreaterThan(largest) {
			largest = tx.Value
		}

		from := strings.ToLower(tx.From)
		to := strings.ToLower(tx.To)
		if from == addr {
			sentN++
			sent = sent.Add(tx.Value)
		}
		if to == addr {
			recvN++
			received = received.Add(tx.Value)
		}
		if from != addr && from != "" {
			parties[from] = struct{}{}
		}
		if to != addr && to != "" {
			parties[to] = struct{}{}
		}

		if tx.ContractCall {
			contractCalls++
		}

		if !tx.Success {
			failed++
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}

	total := len(txs)
	v["total_transactions"+suffix] = float64(total)
	v["sent_tx_count"+suffix] = float64(sentN)
	v["received_tx_count"+suffix] = float64(recvN)
	v["successful_tx_count"+suffix] = float64(total - failed)
	v["failed_tx_count"+suffix] = float64(failed)
	v["failed_tx_ratio"+suffix] = ratio(float64(failed), float64(total))
	v["max_failed_tx_streak"+suffix] = float64(maxStreak)
	v["total_eth_sent"+suffix] = sent.InexactFloat64()
	v["total_eth_received"+suffix] = received.InexactFloat64()
	v["net_eth_change"+suffix] = received.Sub(sent).InexactFloat64()
	v["largest_tx_value"+suffix] = largest.InexactFloat64()
	v["avg_tx_value"+suffix] = avgValue(values)
	v["median_tx_value"+suffix] = medianValue(values)
	v["unique_counterparties"+suffix] = float64(len(parties))
	v["contract_interactions"+suffix] = float64(contractCalls)
	v["contract_interaction_ratio"+suffix] = ratio(float64(contractCalls), float64(total))
	v["avg_tx_per_month"+suffix] = ratio(float64(total), months)
}

// since returns the suffix of txs (already sorted) at or after cutoff.
func since(txs []wallet.Transaction, cutoff time.Time) []wallet.Transaction {
	i := sort.Search(len(txs), func(i int) bool {
		return !txs[i].Timestamp.Before(cutoff)
	})
	return txs[i:]
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func avgValue(values []decimal.Decimal) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum decimal.Decimal
	for _, d := range values {
		sum = sum.Add(d)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).InexactFloat64()
}

// medianValue uses the average-of-two-middles rule for even counts.
func medianValue(values []decimal.Decimal) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid].InexactFloat64()
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)).InexactFloat64()
}

// monthlyStats buckets txs by calendar month over the account lifetime
// (first transaction month through the current month, empty months included)
// and returns the active month count plus the mean and population standard
// deviation of the per-month counts.
func monthlyStats(txs []wallet.Transaction, now time.Time) (active int, mean, std float64) {
	if len(txs) == 0 {
		return 0, 0, 0
	}

	counts := make(map[int]int)
	for _, tx := range txs {
		ts := tx.Timestamp.UTC()
		counts[ts.Year()*12+int(ts.Month())]++
	}
	active = len(counts)

	first := txs[0].Timestamp.UTC()
	start := first.Year()*12 + int(first.Month())
	end := now.Year()*12 + int(now.Month())
	if end < start {
		end = start
	}
	span := end - start + 1

	mean = float64(len(txs)) / float64(span)
	var sumSq float64
	for m := start; m <= end; m++ {
		d := float64(counts[m]) - mean
		sumSq += d * d
	}
	std = math.Sqrt(sumSq / float64(span))
	return active, mean, std
}

// consistency scores how regular monthly activity is, as the inverse of the
// coefficient of variation mapped into [0,1]. Perfectly even activity scores
// 1; bursty activity approaches 0. Undefined (at most one active month)
// scores 0.
func consistency(active int, mean, std float64) float64 {
	if active <= 1 || mean == 0 {
		return 0
	}
	cv := std / mean
	return 1 / (1 + cv)
}
