// Package anomaly is the temperature anomaly engine.
//
// Aggregate reduces a dataset to per-(city, season) baselines: the mean and
// sample standard deviation (n-1) of temperature. A baseline is an immutable
// snapshot; every classifier call and every scan worker reads the same
// *Baselines by pointer and nothing writes to it after construction.
//
// A reading t is anomalous when
//
//	t > mean + 2σ  or  t < mean - 2σ
//
// Values exactly on a bound are normal. Groups with a single sample have an
// undefined σ and classify as ErrUndeterminedBaseline; pairs absent from the
// dataset classify as ErrUnknownBaseline.
//
// Scanner classifies a whole dataset in parallel, one partition per city, and
// aborts on the first failure. RollingMean smooths one city's series for
// display and never feeds back into classification.
package anomaly
