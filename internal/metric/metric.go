// Package metric implements the Metric Evaluator (spec §4.7, component
// C7): the full set of per-candidate scoring fields, computed in two
// passes so ensemble-relative quantities (Bayesian posterior,
// predictive_information normalization) can be finalized only after
// every surviving candidate's raw metrics are known.
package metric

import (
	"math"

	"kato/internal/pattern"
	"kato/internal/segment"
	"kato/internal/symbol"

	"gonum.org/v1/gonum/stat"
)

// Candidate is one surviving filter-pipeline candidate, carrying
// everything the evaluator needs: the pattern itself, its temporal
// segmentation (C6), the similarity score (C5), and the STM symbol set
// the segmentation was computed against (needed for fragmentation).
type Candidate struct {
	Pattern      *pattern.Pattern
	Segmentation *segment.Segmentation
	Similarity   float64
	STMSymbols   []string
}

// Metrics is the complete per-candidate scoring vector (spec §6
// Prediction object fields, metric subset).
type Metrics struct {
	Name      string
	Frequency int
	Matches   []string
	Missing   []string
	Extras    []string
	Past      []symbol.Event
	Present   []symbol.Event
	Future    []symbol.Event

	Confidence              float64
	Evidence                float64
	Similarity              float64
	SNR                     float64
	Fragmentation           int
	Entropy                 float64
	NormalizedEntropy       float64
	GlobalNormalizedEntropy float64
	Confluence              float64
	ITFDFSimilarity         float64
	PredictiveInformation   float64
	TFIDFScore              float64
	BayesianPrior           float64
	BayesianLikelihood      float64
	BayesianPosterior       float64
	Potential               float64
	Emotives                map[string]float64
}

// Evaluate computes Metrics for every surviving candidate, given the
// per-library GlobalStats the Pattern Library caches. Per spec §4.7:
// "compute per-candidate metrics first, then normalize posterior over
// surviving ensemble."
func Evaluate(candidates []Candidate, stats pattern.GlobalStats) []Metrics {
	totalEnsembleFrequency := 0
	for _, c := range candidates {
		totalEnsembleFrequency += c.Pattern.Frequency
	}

	type raw struct {
		metrics              Metrics
		priorTimesLikelihood float64
		predictiveInfoRaw    float64
	}
	rows := make([]raw, len(candidates))

	maxPredictiveInfo := 0.0
	posteriorDenom := 0.0

	for i, c := range candidates {
		m := baseMetrics(c, stats, totalEnsembleFrequency)
		rows[i].metrics = m
		rows[i].priorTimesLikelihood = m.BayesianPrior * m.BayesianLikelihood
		posteriorDenom += rows[i].priorTimesLikelihood

		future := flatten(c.Segmentation.Future)
		freqWeight := 0.0
		if totalEnsembleFrequency > 0 {
			freqWeight = float64(c.Pattern.Frequency) / float64(totalEnsembleFrequency)
		}
		rows[i].predictiveInfoRaw = freqWeight * shannonEntropyBase2(frequencyDistribution(future))
		if rows[i].predictiveInfoRaw > maxPredictiveInfo {
			maxPredictiveInfo = rows[i].predictiveInfoRaw
		}
	}

	out := make([]Metrics, len(rows))
	for i, r := range rows {
		m := r.metrics
		if posteriorDenom > 0 {
			m.BayesianPosterior = r.priorTimesLikelihood / posteriorDenom
		}
		if maxPredictiveInfo > 0 {
			m.PredictiveInformation = r.predictiveInfoRaw / maxPredictiveInfo
		}
		m.Potential = (m.Evidence+m.Confidence)*m.SNR + m.ITFDFSimilarity + 1.0/float64(m.Fragmentation+1)
		out[i] = m
	}
	return out
}

func baseMetrics(c Candidate, stats pattern.GlobalStats, totalEnsembleFrequency int) Metrics {
	p := c.Pattern
	seg := c.Segmentation

	matchCount := len(seg.Matches)
	extraCount := len(seg.Extras)
	presentLen := countSymbols(seg.Present)
	patternLen := countSymbols(p.Data)

	confidence := 0.0
	if presentLen > 0 {
		confidence = float64(matchCount) / float64(presentLen)
	}
	evidence := 0.0
	if patternLen > 0 {
		evidence = float64(matchCount) / float64(patternLen)
	}

	snrDenom := 2*matchCount + extraCount
	snr := 0.0
	if snrDenom > 0 {
		snr = float64(2*matchCount-extraCount) / float64(snrDenom)
	}

	fragmentation := fragmentationCount(seg.Present, c.STMSymbols)

	presentSymbols := flatten(seg.Present)
	entropy := shannonEntropyBase2(frequencyDistribution(presentSymbols))
	normalizedEntropy := entropy // same local distribution, spec's expectation(p,n) sum

	globalNormalizedEntropy := globalNormalizedEntropyOf(presentSymbols, stats)
	confluence := confluenceOf(p, stats, totalEnsembleFrequency)

	distance := 1 - c.Similarity
	itfdf := 1.0
	if totalEnsembleFrequency > 0 {
		itfdf = 1 - (distance*float64(p.Frequency))/float64(totalEnsembleFrequency)
	}

	tfidf := tfidfScoreOf(p, stats, patternLen)

	prior := 0.0
	if totalEnsembleFrequency > 0 {
		prior = float64(p.Frequency) / float64(totalEnsembleFrequency)
	}

	emotives := make(map[string]float64, len(p.Emotives))
	for k, values := range p.Emotives {
		emotives[k] = mean(values)
	}

	return Metrics{
		Name:                    p.Name,
		Frequency:               p.Frequency,
		Matches:                 seg.Matches,
		Missing:                 seg.Missing,
		Extras:                  seg.Extras,
		Past:                    seg.Past,
		Present:                 seg.Present,
		Future:                  seg.Future,
		Confidence:              confidence,
		Evidence:                evidence,
		Similarity:              c.Similarity,
		SNR:                     snr,
		Fragmentation:           fragmentation,
		Entropy:                 entropy,
		NormalizedEntropy:       normalizedEntropy,
		GlobalNormalizedEntropy: globalNormalizedEntropy,
		Confluence:              confluence,
		ITFDFSimilarity:         itfdf,
		TFIDFScore:              tfidf,
		BayesianPrior:           prior,
		BayesianLikelihood:      c.Similarity,
		Emotives:                emotives,
	}
}

// fragmentationCount counts contiguous blocks of present events that
// contain at least one stm symbol, minus 1 (spec §4.7).
func fragmentationCount(present []symbol.Event, stmSymbols []string) int {
	stmSet := make(map[string]struct{}, len(stmSymbols))
	for _, s := range stmSymbols {
		stmSet[s] = struct{}{}
	}

	blocks := 0
	inBlock := false
	for _, ev := range present {
		matched := false
		for _, sym := range ev {
			if _, ok := stmSet[sym]; ok {
				matched = true
				break
			}
		}
		if matched && !inBlock {
			blocks++
			inBlock = true
		} else if !matched {
			inBlock = false
		}
	}
	if blocks == 0 {
		return 0
	}
	return blocks - 1
}

func globalNormalizedEntropyOf(symbols []string, stats pattern.GlobalStats) float64 {
	if stats.PatternCount == 0 {
		return 0
	}
	seen := make(map[string]struct{})
	total := 0.0
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
	}
	for s := range seen {
		p := float64(stats.SymbolDF[s]) / float64(stats.PatternCount)
		if p <= 0 {
			continue
		}
		total += expectation(p)
	}
	return total
}

func confluenceOf(p *pattern.Pattern, stats pattern.GlobalStats, totalEnsembleFrequency int) float64 {
	if stats.PatternCount == 0 {
		return 0
	}
	freqShare := 0.0
	if totalEnsembleFrequency > 0 {
		freqShare = float64(p.Frequency) / float64(totalEnsembleFrequency)
	}
	product := 1.0
	seen := make(map[string]struct{})
	for _, ev := range p.Data {
		for _, sym := range ev {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			prob := float64(stats.SymbolDF[sym]) / float64(stats.PatternCount)
			if prob <= 0 {
				prob = 1.0 / float64(stats.PatternCount)
			}
			product *= prob
		}
	}
	return freqShare * (1 - product)
}

func tfidfScoreOf(p *pattern.Pattern, stats pattern.GlobalStats, patternLen int) float64 {
	if patternLen == 0 || stats.PatternCount == 0 {
		return 0
	}
	termFreq := make(map[string]int)
	for _, ev := range p.Data {
		for _, sym := range ev {
			termFreq[sym]++
		}
	}
	total := 0.0
	for sym, count := range termFreq {
		df := stats.SymbolDF[sym]
		if df < 1 {
			df = 1
		}
		tf := float64(count) / float64(patternLen)
		idf := math.Log2(float64(stats.PatternCount)/float64(df)) + 1
		total += tf * idf
	}
	return total / float64(len(termFreq))
}

// expectation(p, n) per the Open Question decision: standard Shannon
// per-symbol contribution -p*log2(p).
func expectation(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return -p * math.Log2(p)
}

func frequencyDistribution(symbols []string) map[string]int {
	dist := make(map[string]int)
	for _, s := range symbols {
		dist[s]++
	}
	return dist
}

// shannonEntropyBase2 computes Shannon entropy (base 2) of the
// distribution implied by counts, via gonum's stat.Entropy (natural log)
// converted to bits.
func shannonEntropyBase2(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	probs := make([]float64, 0, len(counts))
	for _, c := range counts {
		probs = append(probs, float64(c)/float64(total))
	}
	return stat.Entropy(probs) / math.Ln2
}

func countSymbols(events []symbol.Event) int {
	n := 0
	for _, ev := range events {
		n += len(ev)
	}
	return n
}

func flatten(events []symbol.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, []string(ev)...)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
