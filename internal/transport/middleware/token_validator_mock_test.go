package middleware

import (
	"sync"
)

var _ tokenValidator = &tokenValidatorMock{}

type tokenValidatorMock struct {
	ValidateServiceTokenFunc func(token string) (string, string, error)

	calls struct {
		ValidateServiceToken []struct {
			Token string
		}
	}
	lockValidateServiceToken sync.RWMutex
}

func (mock *tokenValidatorMock) ValidateServiceToken(token string) (string, string, error) {
	if mock.ValidateServiceTokenFunc == nil {
		panic("tokenValidatorMock.ValidateServiceTokenFunc: method is nil but tokenValidator.ValidateServiceToken was just called")
	}
	callInfo := struct {
		Token string
	}{Token: token}
	mock.lockValidateServiceToken.Lock()
	mock.calls.ValidateServiceToken = append(mock.calls.ValidateServiceToken, callInfo)
	mock.lockValidateServiceToken.Unlock()
	return mock.ValidateServiceTokenFunc(token)
}

func (mock *tokenValidatorMock) ValidateServiceTokenCalls() []struct {
	Token string
} {
	mock.lockValidateServiceToken.RLock()
	calls := mock.calls.ValidateServiceToken
	mock.lockValidateServiceToken.RUnlock()
	return calls
}
