// Package schema validates the rendered arguments of a brick.
//
// Bricks declare an input Schema in their metadata. When input validation is
// enabled, the dispatcher checks the rendered args before the brick runs and
// reports every failure at once:
//
//	inputs := schema.Schema{
//	    "url":     schema.String(),
//	    "retries": schema.Optional(schema.Int()),
//	    "headers": schema.Optional(schema.Object()),
//	}
//
//	if err := schema.Validate(inputs, args); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        // ...
//	    }
//	}
//
// Schemas can also be written as type strings ("string", "?int", "[string]")
// and parsed with ParseTypeMap, which is how definition files declare them.
package schema
