package consts

const (
	EPSILON0 = 8.854e-12 // Vacuum permittivity (F/m)
	UM_TO_CM = 1e-4      // Micrometer to centimeter
	C_TO_UC  = 1e6       // Coulomb to microcoulomb

	// Series resistance above which the parallel Cp-Rp scheme is used
	PARALLEL_RESISTANCE = 1.0 // Ohm

	DEFAULT_PAD_SIZE_UM = 25.0
	DEFAULT_TOLERANCE   = 5e-2 // V, nearest-neighbour lookups

	// PUND-double charge (C) per um^2 to uC/cm^2
	PUND_CHARGE_SCALE = 1e14
)
