// Package network implements neural network value functions using
// Gorgonia
package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/offpolicy/harvest/policy"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	relu    bool
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, err
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, err
	}

	if !f.relu {
		return x, nil
	}
	return G.Rectify(x)
}

// QMLP implements an action-value function as a multi-layered
// perceptron with one output head per action. It satisfies
// policy.Network, so workers can run inference on it and synchronize
// its parameters without knowing it is a neural network.
//
// The graph is built for single-state inference (batch size 1) and is
// run by the network's own tape machine on every ActionValues call.
type QMLP struct {
	g      *G.ExprGraph
	vm     G.VM
	layers []*fcLayer

	input      *G.Node
	prediction *G.Node
	predVal    G.Value

	learnables G.Nodes
	features   int
	actions    int
}

// Compile-time check that workers can use a QMLP as their network
var _ policy.Network = (*QMLP)(nil)

// NewQMLP creates an MLP with len(hiddenSizes) ReLU hidden layers and
// a linear output layer of one unit per action. Hidden weights use the
// given Gorgonia initializer; biases start at zero. hiddenSizes may be
// empty, giving a linear network.
func NewQMLP(features, actions int, hiddenSizes []int,
	init G.InitWFn) (*QMLP, error) {
	if features < 1 || actions < 1 {
		return nil, fmt.Errorf("newqmlp: features and actions must be "+
			"positive \n\thave features(%v) actions(%v)", features, actions)
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(1, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// A final linear layer is always added so that the network outputs
	// one value per action
	sizes := append(append([]int{}, hiddenSizes...), actions)

	layers := make([]*fcLayer, len(sizes))
	in := features
	for i, out := range sizes {
		if out < 1 {
			return nil, fmt.Errorf("newqmlp: layer sizes must be positive "+
				"\n\thave(%v)", out)
		}

		layers[i] = &fcLayer{
			weights: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
				G.WithName(fmt.Sprintf("w%d", i)), G.WithInit(init)),
			bias: G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
				G.WithName(fmt.Sprintf("b%d", i)), G.WithInit(G.Zeroes())),
			relu: i < len(sizes)-1,
		}
		in = out
	}

	net := &QMLP{
		g:        g,
		layers:   layers,
		input:    input,
		features: features,
		actions:  actions,
	}

	// Run the forward pass on the input node
	pred := input
	var err error
	for i, l := range layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("newqmlp: could not compute forward "+
				"pass of layer %v: %v", i, err)
		}
	}
	net.prediction = pred
	G.Read(net.prediction, &net.predVal)

	net.vm = G.NewTapeMachine(g)
	return net, nil
}

// Learnables returns the learnable nodes of the network. Their order
// is the parameter enumeration order of the synchronization protocol:
// weights then bias, layer by layer from input to output.
func (q *QMLP) Learnables() G.Nodes {
	if q.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(q.layers))
		for _, l := range q.layers {
			learnables = append(learnables, l.weights, l.bias)
		}
		q.learnables = G.Nodes(learnables)
	}
	return q.learnables
}

// NumActions returns the number of actions the network predicts values
// for
func (q *QMLP) NumActions() int {
	return q.actions
}

// ActionValues runs the forward pass on a single state and returns the
// estimated value of every action
func (q *QMLP) ActionValues(state mat.Vector) (*mat.VecDense, error) {
	if state.Len() != q.features {
		return nil, fmt.Errorf("actionvalues: invalid state size "+
			"\n\twant(%v)\n\thave(%v)", q.features, state.Len())
	}

	backing := make([]float64, q.features)
	for i := range backing {
		backing[i] = state.AtVec(i)
	}
	inputTensor := tensor.New(tensor.WithShape(1, q.features),
		tensor.WithBacking(backing))
	if err := G.Let(q.input, inputTensor); err != nil {
		return nil, fmt.Errorf("actionvalues: could not set input: %v", err)
	}

	if err := q.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("actionvalues: could not run forward "+
			"pass: %v", err)
	}
	defer q.vm.Reset()

	output := q.predVal.Data().([]float64)
	values := make([]float64, q.actions)
	copy(values, output)

	return mat.NewVecDense(q.actions, values), nil
}

// Parameters returns a snapshot of every parameter tensor in
// enumeration order
func (q *QMLP) Parameters() []policy.Tensor {
	learnables := q.Learnables()
	params := make([]policy.Tensor, len(learnables))

	for i, node := range learnables {
		value := node.Value().(*tensor.Dense)
		data := make([]float64, len(value.Data().([]float64)))
		copy(data, value.Data().([]float64))

		shape := make([]int, len(value.Shape()))
		copy(shape, value.Shape())

		params[i] = policy.Tensor{Shape: shape, Data: data}
	}
	return params
}

// SetParameters overwrites every parameter tensor's content in
// enumeration order. The network keeps its identity; a count or shape
// mismatch rejects the whole set without applying any of it.
func (q *QMLP) SetParameters(params []policy.Tensor) error {
	learnables := q.Learnables()
	if len(params) != len(learnables) {
		return fmt.Errorf("setparameters: invalid parameter count "+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(params))
	}

	for i, param := range params {
		if err := param.Validate(); err != nil {
			return fmt.Errorf("setparameters: parameter %v: %v", i, err)
		}
		if !shapeEqual(param.Shape, learnables[i].Shape()) {
			return fmt.Errorf("setparameters: parameter %v: invalid shape "+
				"\n\twant(%v)\n\thave(%v)", i, learnables[i].Shape(),
				param.Shape)
		}
	}

	for i, param := range params {
		data := make([]float64, len(param.Data))
		copy(data, param.Data)
		value := tensor.New(tensor.WithShape(param.Shape...),
			tensor.WithBacking(data))
		if err := G.Let(learnables[i], value); err != nil {
			return fmt.Errorf("setparameters: parameter %v: %v", i, err)
		}
	}
	return nil
}

// Close releases the network's tape machine
func (q *QMLP) Close() error {
	return q.vm.Close()
}

// shapeEqual reports whether a wire shape matches a node shape
func shapeEqual(a []int, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
