// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/optim"
)

// Optimizer updates parameters from their gradients.
type Optimizer = optim.Optimizer

// Parameter is a value matrix with its gradient and momentum buffers.
type Parameter = optim.Parameter

// Role distinguishes weights from biases.
type Role = optim.Role

// Parameter roles.
const (
	RoleWeight = optim.RoleWeight
	RoleBias   = optim.RoleBias
)

// NewParameter allocates a zeroed rows × cols parameter.
func NewParameter(name string, role Role, rows, cols int) *Parameter {
	return optim.NewParameter(name, role, rows, cols)
}

// SGD is the momentum SGD updater.
type SGD = optim.SGD

// NewSGD creates an updater from learn.
//
// Example:
//
//	sgd, err := optim.NewSGD(nn.DefaultLearnGeometry())
//	err = sgd.Step(weights, bias)
func NewSGD(learn geometry.LearnGeometry) (*SGD, error) { return optim.NewSGD(learn) }
