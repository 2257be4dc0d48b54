/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())

	shape1 := Make(Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Len(t, shape1.Dimensions, 3)
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 3, shape1.Dim(1))
	require.Equal(t, 2, shape1.Dim(-1))

	require.True(t, shape1.Equal(Make(Float32, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(Float64, 4, 3, 2)))
	require.True(t, shape1.EqualDimensions(Make(Float64, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(Float32, 4, 3)))

	shape2 := shape1.Clone()
	shape2.Dimensions[0] = 7
	require.Equal(t, 4, shape1.Dimensions[0])

	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	// Zero-sized dimensions are valid and have size 0.
	empty := Make(Int32, 2, 0, 3)
	require.True(t, empty.Ok())
	require.Equal(t, 0, empty.Size())

	// Negative dimensions panic.
	require.Panics(t, func() { Make(Float32, 2, -1) })
}
