package stats

import "github.com/stretchr/testify/mock"

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockUpdater) Add(name string, delta int) {
	m.Called(name, delta)
}
func (m *MockUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockUpdater) Run() {
	m.Called()
}
