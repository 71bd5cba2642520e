package main

import (
	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/api"
)

type swapperClientProvider struct {
	swapper *api.ClientSwapper
}

func (p swapperClientProvider) Acquire() (*litellm.Client, func()) {
	if p.swapper == nil {
		return nil, func() {}
	}
	return p.swapper.Acquire()
}
