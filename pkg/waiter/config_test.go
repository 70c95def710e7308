package waiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().Error(VerifyConfig(nil))

	config := DefaultConfig()
	s.Require().NoError(VerifyConfig(config))

	config.OpenTimeout = -time.Second
	s.Require().Error(VerifyConfig(config))
	config.OpenTimeout = time.Second

	config.OpenInitialInterval = 0
	s.Require().Error(VerifyConfig(config))
	config.OpenInitialInterval = time.Millisecond

	config.OpenMaxInterval = time.Microsecond
	s.Require().Error(VerifyConfig(config))
	config.OpenMaxInterval = time.Millisecond
	s.Require().NoError(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestLoadConfigDefaults() {
	config, err := LoadConfig()
	s.Require().NoError(err)
	s.Equal(time.Duration(0), config.OpenTimeout)
	s.Equal(defaultOpenInitialInterval, config.OpenInitialInterval)
	s.Equal(defaultOpenMaxInterval, config.OpenMaxInterval)
	s.Empty(config.ShmDir)
}

func (s *ConfigTestSuite) TestLoadConfigFromEnv() {
	s.T().Setenv("SHMWAITER_OPEN_TIMEOUT", "2s")
	s.T().Setenv("SHMWAITER_OPEN_MAX_INTERVAL", "5ms")
	s.T().Setenv("SHMWAITER_SHM_DIR", "/tmp/waiters")

	config, err := LoadConfig()
	s.Require().NoError(err)
	s.Equal(2*time.Second, config.OpenTimeout)
	s.Equal(5*time.Millisecond, config.OpenMaxInterval)
	s.Equal("/tmp/waiters", config.ShmDir)
}

func (s *ConfigTestSuite) TestLoadConfigRejectsBadEnv() {
	s.T().Setenv("SHMWAITER_OPEN_TIMEOUT", "soon")
	_, err := LoadConfig()
	s.Error(err)

	s.T().Setenv("SHMWAITER_OPEN_TIMEOUT", "-1s")
	_, err = LoadConfig()
	s.Error(err)
}
