/*
Copyright © 2018 the LPDM authors.
This file is part of LPDM.

LPDM is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LPDM is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LPDM.  If not, see <http://www.gnu.org/licenses/>.
*/

package lpdm

import "fmt"

// OutOfDomainError reports a sample coordinate strictly outside the
// meteorological data domain. It terminates the affected trajectory but is
// not a simulation failure.
type OutOfDomainError struct {
	Axis     string  // "longitude", "latitude", "vertical", or "time"
	Value    float64 // the offending coordinate
	Min, Max float64 // the domain bounds on that axis
}

func (err *OutOfDomainError) Error() string {
	return fmt.Sprintf("lpdm: %s coordinate %g outside of data domain [%g, %g]",
		err.Axis, err.Value, err.Min, err.Max)
}

// InvalidConfigurationError reports a SimulationConfig value that cannot be
// run. It is returned during setup, before any integration begins.
type InvalidConfigurationError struct {
	Field  string      // the configuration field at fault
	Value  interface{} // the offending value
	Reason string
}

func (err *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("lpdm: invalid configuration: %s=%v: %s",
		err.Field, err.Value, err.Reason)
}

// NumericalInstabilityError reports a NaN or infinite value in a particle's
// computed state. The affected particle is terminated and its unstable state
// is never recorded or accumulated.
type NumericalInstabilityError struct {
	Step     int    // the integration step at which instability appeared
	Quantity string // the state variable that became non-finite
}

func (err *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("lpdm: non-finite %s at integration step %d",
		err.Quantity, err.Step)
}
