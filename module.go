package wireup

// RegistrationBlock is a registration action applied to a Collection. It is
// the unit modules are built from: a function that adds strategies,
// decorators, or nested modules to the collection it is given.
type RegistrationBlock func(*Collection) error

// Module groups related RegistrationBlocks under a name. If any block
// fails, registration stops and the error is wrapped with the module name.
//
//	var DatabaseModule = wireup.Module("database",
//	    wireup.AddSingleton(NewDatabaseConnection),
//	    wireup.AddScoped(NewUserRepository),
//	    wireup.AddScoped(NewOrderRepository),
//	)
//
//	var AppModule = wireup.Module("app",
//	    wireup.AddModule(DatabaseModule),
//	    wireup.AddScoped(NewAppService),
//	)
func Module(name string, blocks ...RegistrationBlock) RegistrationBlock {
	return func(c *Collection) error {
		for _, block := range blocks {
			if block == nil {
				continue
			}
			if err := block(c); err != nil {
				return &ModuleError{Module: name, Cause: err}
			}
		}
		return nil
	}
}

// AddModule creates a RegistrationBlock that applies another module.
func AddModule(module RegistrationBlock) RegistrationBlock {
	return func(c *Collection) error {
		if module == nil {
			return nil
		}
		return module(c)
	}
}

// AddSingleton creates a RegistrationBlock that registers a singleton export.
func AddSingleton(constructor any, opts ...AddOption) RegistrationBlock {
	return func(c *Collection) error {
		return c.AddSingleton(constructor, opts...)
	}
}

// AddScoped creates a RegistrationBlock that registers a scoped export.
func AddScoped(constructor any, opts ...AddOption) RegistrationBlock {
	return func(c *Collection) error {
		return c.AddScoped(constructor, opts...)
	}
}

// AddTransient creates a RegistrationBlock that registers a transient export.
func AddTransient(constructor any, opts ...AddOption) RegistrationBlock {
	return func(c *Collection) error {
		return c.AddTransient(constructor, opts...)
	}
}

// AddPerContext creates a RegistrationBlock that registers a per-context
// export.
func AddPerContext(constructor any, opts ...AddOption) RegistrationBlock {
	return func(c *Collection) error {
		return c.AddPerContext(constructor, opts...)
	}
}

// AddDecorator creates a RegistrationBlock that registers a decorator.
func AddDecorator(decorator any, opts ...AddOption) RegistrationBlock {
	return func(c *Collection) error {
		return c.Decorate(decorator, opts...)
	}
}
