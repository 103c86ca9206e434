package paramcache

import "time"

// testParam is a minimal ParameterId for tests.
type testParam string

func (p testParam) Name() string { return string(p) }

func mkpv(pid ParameterId, genMillis int64, status AcquisitionStatus) *ParameterValue {
	gen := time.UnixMilli(genMillis)
	return NewParameterValue(pid, nil, nil, status, gen, gen, -1)
}

func mkpvExpiring(pid ParameterId, genMillis, acqMillis, expireMillis int64, status AcquisitionStatus) *ParameterValue {
	return NewParameterValue(pid, nil, nil, status,
		time.UnixMilli(genMillis), time.UnixMilli(acqMillis), expireMillis)
}
