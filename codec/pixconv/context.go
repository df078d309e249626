//go:build !withcv
// +build !withcv

/*
NAME
  context.go

DESCRIPTION
  Provides conversion contexts when building without Open CV.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pixconv

func newContext(k key) (context, error) {
	c, err := newTableContext(k)
	if err != nil {
		return nil, err
	}
	return c, nil
}
