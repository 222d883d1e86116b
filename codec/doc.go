// Package codec translates simulation requests into engine calls and engine
// output records back into results.
//
// # Operations
//
// Each Operation maps to an engine entry point, an optional progress
// variant, a parameter shape and a fixed record width in 32-bit words:
//
//	simulateVsListEquity               simulate_vs_list_equity                   5
//	simulateVsListWithRanks            simulate_vs_list_with_ranks               14
//	simulateVsListWithRanksTrace       simulate_vs_list_with_ranks_trace         11
//	simulateVsListWithRanksMonteCarlo  simulate_vs_list_with_ranks_monte_carlo   32
//	simulateRankDistribution           simulate_rank_distribution                9
//	simulateMultiHandEquity            simulate_multi_hand_equity                3
//	simulateRangeVsRangeEquity         simulate_range_vs_range_equity            4
//	simulateOpenRangesMonteCarlo       simulate_open_ranges_monte_carlo          12
//	parseRangeToHands                  parse_range_to_hands                      2
//	evaluateHandsRanking               evaluate_hands_ranking                    9
//
// # Text Inputs
//
// Cards within a hand are joined by a single space and hands by "; ". An
// empty board is the empty string. Empty hands are dropped before joining,
// and results that carry no card words are labelled from the same filtered
// list. Ranges use the expression syntax of card.ParseRange; opponent
// ranges are joined by "; ".
//
// # Records
//
// Vs-list records start with two card words followed by wins, ties and
// plays. A row whose card words are both 0xFFFFFFFF is the hero aggregate.
// Width-14 records append a 9-slot histogram in CategoryLabels order.
// Multi-hand and range records carry equity scaled by EquityScale.
package codec
