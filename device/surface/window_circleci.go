//go:build !withcv
// +build !withcv

/*
DESCRIPTION
  Replaces the Open CV window surface when building without Open CV.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package surface

import "errors"

// Window is not available without Open CV.
type Window struct{ Null }

// NewWindow returns an error; build with the withcv tag for window output.
func NewWindow(title string) (*Window, error) {
	return nil, errors.New("window surface requires the withcv build tag")
}
