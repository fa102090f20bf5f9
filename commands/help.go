package commands

import "context"

type helpCommand struct {
	*base
	unknown string
	menu    []string
}

func (c *helpCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *helpCommand) checkArguments(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *helpCommand) executeImplementation(ctx context.Context) error {
	if c.unknown != "" {
		c.reject(UsageError, "There is no command /%s.", c.unknown)
	}
	c.receipt(c.menu...)
	return nil
}
